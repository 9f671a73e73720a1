package github

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Provisioner ensures team repositories exist in the organization
type Provisioner struct {
	client          APIClient
	owner           string
	private         bool
	licenseTemplate string
	dryRun          bool
	logger          *zap.Logger
}

// ProvisionerOptions configures repository creation
type ProvisionerOptions struct {
	Private         bool
	LicenseTemplate string
	// DryRun only checks for existence and reports OutcomeWouldCreate
	DryRun bool
	Logger *zap.Logger
}

// NewProvisioner creates a provisioner for repositories owned by owner
func NewProvisioner(client APIClient, owner string, opts ProvisionerOptions) *Provisioner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		client:          client,
		owner:           owner,
		private:         opts.Private,
		licenseTemplate: opts.LicenseTemplate,
		dryRun:          opts.DryRun,
		logger:          logger,
	}
}

// EnsureRepository creates the repository, treating "name already exists" as success.
// The repository is initialized with a README and the configured license.
func (p *Provisioner) EnsureRepository(ctx context.Context, name, description string) (EnsureOutcome, error) {
	if p.dryRun {
		return p.checkRepository(ctx, name)
	}

	_, err := p.client.CreateRepository(ctx, p.owner, RepositoryConfig{
		Name:            name,
		Description:     description,
		Private:         p.private,
		AutoInit:        true,
		LicenseTemplate: p.licenseTemplate,
	})
	switch {
	case err == nil:
		p.logger.Info("repository created", zap.String("repository", p.fullName(name)))
		return OutcomeCreated, nil
	case isAlreadyExists(err):
		p.logger.Debug("repository already exists", zap.String("repository", p.fullName(name)))
		return OutcomeAlreadyExists, nil
	default:
		p.logger.Error("repository creation failed", zap.String("repository", p.fullName(name)), zap.Error(err))
		return OutcomeFailed, err
	}
}

func (p *Provisioner) checkRepository(ctx context.Context, name string) (EnsureOutcome, error) {
	_, err := p.client.GetRepository(ctx, p.owner, name)
	switch {
	case err == nil:
		return OutcomeAlreadyExists, nil
	case IsNotFound(err):
		return OutcomeWouldCreate, nil
	default:
		return OutcomeFailed, err
	}
}

// RepositoryURL returns the browser URL of a team repository
func RepositoryURL(host, owner, name string) string {
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/%s", host, owner, name)
}

func (p *Provisioner) fullName(name string) string {
	return p.owner + "/" + name
}

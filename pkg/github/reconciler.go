package github

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hackops/pkg/identity"
	"hackops/pkg/roster"
)

// reconciler implements the Reconciler interface for one organization
type reconciler struct {
	client     APIClient
	owner      string
	permission string
	protected  identity.Set
	extractor  *identity.Extractor
	throttle   Throttle
	logger     *zap.Logger
}

// ReconcilerOptions configures a Reconciler
type ReconcilerOptions struct {
	// Permission granted to added collaborators. Defaults to "push".
	Permission string
	// Protected handles are never revoked. Fetched once per run.
	Protected identity.Set
	// Extractor resolves member profile links. Defaults to github.com.
	Extractor *identity.Extractor
	// Throttle is waited on before every grant and revoke
	Throttle Throttle
	Logger   *zap.Logger
}

// NewReconciler creates a new collaborator reconciler
func NewReconciler(client APIClient, owner string, opts ReconcilerOptions) Reconciler {
	if opts.Permission == "" {
		opts.Permission = "push"
	}
	if opts.Protected == nil {
		opts.Protected = identity.NewSet()
	}
	if opts.Extractor == nil {
		opts.Extractor = identity.NewExtractor(identity.DefaultHost)
	}
	if opts.Throttle == nil {
		opts.Throttle = NewThrottle(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &reconciler{
		client:     client,
		owner:      owner,
		permission: opts.Permission,
		protected:  opts.Protected,
		extractor:  opts.Extractor,
		throttle:   opts.Throttle,
		logger:     opts.Logger,
	}
}

// Plan reads the repository's current collaborators and diffs them against the team roster
func (r *reconciler) Plan(ctx context.Context, repo string, team roster.Team) (*CollaboratorPlan, error) {
	current, err := r.client.ListCollaborators(ctx, r.owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators of %s/%s: %w", r.owner, repo, err)
	}

	logins := make([]string, 0, len(current))
	for _, c := range current {
		logins = append(logins, c.Username)
	}

	return r.planFrom(repo, identity.NewSetFromStrings(logins...), team), nil
}

// planFrom builds a plan from an already known actual set
func (r *reconciler) planFrom(repo string, actual identity.Set, team roster.Team) *CollaboratorPlan {
	desired, unresolved := DesiredCollaborators(r.extractor, team)

	plan := Diff(actual, desired, r.protected)
	plan.Repository = repo
	plan.Unresolved = unresolved

	for _, m := range unresolved {
		r.logger.Warn("member has no resolvable profile link",
			zap.String("team", team.Nickname),
			zap.String("member", m.Name),
			zap.String("profile_link", m.ProfileLink))
	}

	return &plan
}

// Apply issues one grant per add and one revoke per remove. Every call is
// attempted; failures are recorded in the result and never stop the loop.
// Once started, a plan runs to completion even if ctx is cancelled.
func (r *reconciler) Apply(ctx context.Context, plan *CollaboratorPlan) *ApplyResult {
	result := &ApplyResult{Failures: map[string]error{}}
	ctx = context.WithoutCancel(ctx)

	for _, change := range plan.Changes(r.permission) {
		if err := r.throttle.Wait(ctx); err != nil {
			r.recordFailure(result, plan.Repository, change, err)
			continue
		}

		if err := r.applyCollaboratorChange(ctx, plan.Repository, change); err != nil {
			r.recordFailure(result, plan.Repository, change, err)
			continue
		}

		switch change.Type {
		case ChangeTypeCreate:
			result.Added = append(result.Added, identity.Handle(change.After.Username))
			r.logger.Info("collaborator granted",
				zap.String("repository", plan.Repository),
				zap.String("user", change.After.Username),
				zap.String("permission", change.After.Permission))
		case ChangeTypeDelete:
			result.Removed = append(result.Removed, identity.Handle(change.Before.Username))
			r.logger.Info("collaborator revoked",
				zap.String("repository", plan.Repository),
				zap.String("user", change.Before.Username))
		}
	}

	return result
}

func (r *reconciler) applyCollaboratorChange(ctx context.Context, repo string, change CollaboratorChange) error {
	switch change.Type {
	case ChangeTypeCreate:
		return r.client.AddCollaborator(ctx, r.owner, repo, change.After.Username, change.After.Permission)
	case ChangeTypeDelete:
		err := r.client.RemoveCollaborator(ctx, r.owner, repo, change.Before.Username)
		if IsNotFound(err) {
			// already absent
			return nil
		}
		return err
	default:
		return fmt.Errorf("unsupported collaborator change type: %s", change.Type)
	}
}

func (r *reconciler) recordFailure(result *ApplyResult, repo string, change CollaboratorChange, err error) {
	var key string
	switch change.Type {
	case ChangeTypeCreate:
		key = "grant " + change.After.Username
	default:
		key = "revoke " + change.Before.Username
	}
	result.Failures[key] = err
	r.logger.Error("collaborator change failed",
		zap.String("repository", repo),
		zap.String("operation", key),
		zap.Error(err))
}

package envapi

import (
	"context"
	"fmt"
)

// VariableSetter is the write side of the service API
type VariableSetter interface {
	SetVariable(ctx context.Context, teamSlug, key, value string, opts VariableOptions) error
}

// RepositoryPublisher stores a team's repository URL as its Repo variable
type RepositoryPublisher struct {
	setter VariableSetter
	def    Definition
}

// NewRepositoryPublisher publishes through setter using the catalog's Repo attributes
func NewRepositoryPublisher(setter VariableSetter, catalog *Catalog) (*RepositoryPublisher, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	def, ok := catalog.Lookup(KeyRepo)
	if !ok {
		return nil, fmt.Errorf("catalog has no %s definition", KeyRepo)
	}
	return &RepositoryPublisher{setter: setter, def: def}, nil
}

// PublishRepository sets Repo for teamSlug
func (p *RepositoryPublisher) PublishRepository(ctx context.Context, teamSlug, repositoryURL string) error {
	if err := p.setter.SetVariable(ctx, teamSlug, p.def.Key, repositoryURL, p.def.Options()); err != nil {
		return fmt.Errorf("failed to publish repository URL for team %s: %w", teamSlug, err)
	}
	return nil
}

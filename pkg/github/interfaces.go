package github

import (
	"context"

	"hackops/pkg/roster"
)

// APIClient defines the GitHub API operations used by provisioning and reconciliation
type APIClient interface {
	// Repository operations
	GetRepository(ctx context.Context, owner, name string) (*Repository, error)
	CreateRepository(ctx context.Context, owner string, config RepositoryConfig) (*Repository, error)

	// Collaborator operations
	ListCollaborators(ctx context.Context, owner, name string) ([]Collaborator, error)
	AddCollaborator(ctx context.Context, owner, name, username, permission string) error
	RemoveCollaborator(ctx context.Context, owner, name, username string) error

	// Organization operations
	ListOrganizationMembers(ctx context.Context, org string) ([]string, error)
}

// Reconciler converges a team repository's collaborators toward its roster
type Reconciler interface {
	Plan(ctx context.Context, repo string, team roster.Team) (*CollaboratorPlan, error)
	Apply(ctx context.Context, plan *CollaboratorPlan) *ApplyResult
}

// RepositoryPublisher records a team's repository URL in the team's environment
type RepositoryPublisher interface {
	PublishRepository(ctx context.Context, teamSlug, repositoryURL string) error
}

// ChangeType represents the type of change in a collaborator plan
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeDelete ChangeType = "delete"
)

// CollaboratorChange represents a change to collaborator access
type CollaboratorChange struct {
	Type   ChangeType    `json:"type"`
	Before *Collaborator `json:"before,omitempty"`
	After  *Collaborator `json:"after,omitempty"`
}

package github

import (
	"time"

	"hackops/pkg/identity"
)

// Repository represents a GitHub repository
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Private     bool      `json:"private"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// RepositoryConfig holds the creation settings for a team repository
type RepositoryConfig struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Private         bool   `json:"private"`
	AutoInit        bool   `json:"auto_init"`
	LicenseTemplate string `json:"license_template,omitempty"`
}

// Collaborator represents a repository collaborator
type Collaborator struct {
	Username   string `json:"username"`
	Permission string `json:"permission,omitempty"`
}

// EnsureOutcome is the result of ensuring a repository exists
type EnsureOutcome string

const (
	OutcomeCreated       EnsureOutcome = "created"
	OutcomeAlreadyExists EnsureOutcome = "already-exists"
	OutcomeFailed        EnsureOutcome = "failed"
	// OutcomeWouldCreate is only produced in dry-run mode
	OutcomeWouldCreate EnsureOutcome = "would-create"
)

// Ensured reports whether the repository is usable after the call
func (o EnsureOutcome) Ensured() bool {
	return o == OutcomeCreated || o == OutcomeAlreadyExists || o == OutcomeWouldCreate
}

// UnresolvedMember is a roster member whose profile link did not yield a handle
type UnresolvedMember struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	ProfileLink string `json:"profile_link,omitempty"`
}

// CollaboratorPlan is the set difference between actual and desired collaborators
type CollaboratorPlan struct {
	Repository string            `json:"repository"`
	ToAdd      []identity.Handle `json:"to_add"`
	ToRemove   []identity.Handle `json:"to_remove"`
	// Preserved lists actual collaborators kept only because they are protected
	Preserved  []identity.Handle  `json:"preserved,omitempty"`
	Unresolved []UnresolvedMember `json:"unresolved,omitempty"`
	Desired    int                `json:"desired"`
	Actual     int                `json:"actual"`
}

// IsEmpty reports whether applying the plan would issue no calls
func (p *CollaboratorPlan) IsEmpty() bool {
	return len(p.ToAdd) == 0 && len(p.ToRemove) == 0
}

// Changes lists the plan as ordered changes: all grants, then all revokes
func (p *CollaboratorPlan) Changes(permission string) []CollaboratorChange {
	changes := make([]CollaboratorChange, 0, len(p.ToAdd)+len(p.ToRemove))
	for _, h := range p.ToAdd {
		changes = append(changes, CollaboratorChange{
			Type:  ChangeTypeCreate,
			After: &Collaborator{Username: h.String(), Permission: permission},
		})
	}
	for _, h := range p.ToRemove {
		changes = append(changes, CollaboratorChange{
			Type:   ChangeTypeDelete,
			Before: &Collaborator{Username: h.String()},
		})
	}
	return changes
}

// ApplyResult counts the outcome of applying a collaborator plan
type ApplyResult struct {
	Added    []identity.Handle `json:"added"`
	Removed  []identity.Handle `json:"removed"`
	Failures map[string]error  `json:"-"`
}

// Failed returns the number of grant or revoke calls that failed
func (r *ApplyResult) Failed() int {
	return len(r.Failures)
}

// Err returns a PartialFailureError when any call failed
func (r *ApplyResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	succeeded := make([]string, 0, len(r.Added)+len(r.Removed))
	for _, h := range r.Added {
		succeeded = append(succeeded, "grant "+h.String())
	}
	for _, h := range r.Removed {
		succeeded = append(succeeded, "revoke "+h.String())
	}
	return NewPartialFailureError(succeeded, r.Failures)
}

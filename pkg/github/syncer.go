package github

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hackops/pkg/identity"
	"hackops/pkg/roster"
)

// SyncReporter receives progress as the syncer walks the roster
type SyncReporter interface {
	ProtectedLoaded(count int)
	TeamStarted(index, total int, team roster.Team)
	TeamFinished(result *TeamResult)
}

// SyncOptions configures a TeamSyncer
type SyncOptions struct {
	Owner           string
	Host            string
	Permission      string
	Private         bool
	LicenseTemplate string
	// ExtraProtected handles are never revoked, in addition to organization members
	ExtraProtected []string
	Extractor      *identity.Extractor
	DryRun         bool
	OperationDelay time.Duration
	TeamDelay      time.Duration
	// Description renders the repository description for a team
	Description func(team roster.Team) string
	// Publisher is optional; nil skips publishing the repository URL
	Publisher RepositoryPublisher
	Reporters []SyncReporter
	Logger    *zap.Logger
}

// TeamResult is the end-to-end outcome for one team
type TeamResult struct {
	Team       roster.Team       `json:"team"`
	Repository string            `json:"repository"`
	URL        string            `json:"url"`
	Outcome    EnsureOutcome     `json:"outcome"`
	Plan       *CollaboratorPlan `json:"plan,omitempty"`
	Apply      *ApplyResult      `json:"apply,omitempty"`
	Published  bool              `json:"published"`
	DryRun     bool              `json:"dry_run"`
	// PublishErr is set when publishing the repository URL failed
	PublishErr error `json:"-"`
	// Err is set when the team could not be processed past a step
	Err error `json:"-"`
}

// Succeeded reports whether the team fully converged: repository ensured,
// plan computed, no failed grant or revoke and, when configured, URL published.
func (r *TeamResult) Succeeded() bool {
	if r.Err != nil || !r.Outcome.Ensured() || r.Plan == nil {
		return false
	}
	if r.Apply != nil && r.Apply.Failed() > 0 {
		return false
	}
	return r.PublishErr == nil
}

// SyncSummary aggregates a whole run
type SyncSummary struct {
	TotalTeams         int `json:"total_teams"`
	SucceededTeams     int `json:"succeeded_teams"`
	FailedTeams        int `json:"failed_teams"`
	ReposCreated       int `json:"repos_created"`
	ReposExisting      int `json:"repos_existing"`
	CollaboratorsAdded int `json:"collaborators_added"`
	CollaboratorsGone  int `json:"collaborators_removed"`
	FailedCalls        int `json:"failed_calls"`
	UnresolvedMembers  int `json:"unresolved_members"`
	VariablesPublished int `json:"variables_published"`
	ProtectedMembers   int `json:"protected_members"`
}

// SyncResult holds every team result of a run
type SyncResult struct {
	Teams   []*TeamResult `json:"teams"`
	Summary SyncSummary   `json:"summary"`
	// Throttle reports how long grant and revoke calls were held back
	Throttle ThrottleStats `json:"throttle"`
	// Aborted is set when the run was cancelled between teams
	Aborted bool `json:"aborted"`
}

// Converged reports whether every team succeeded and the run was not cut short
func (r *SyncResult) Converged() bool {
	return !r.Aborted && r.Summary.FailedTeams == 0 && r.Summary.SucceededTeams == r.Summary.TotalTeams
}

func (r *SyncResult) record(team *TeamResult) {
	r.Teams = append(r.Teams, team)
	s := &r.Summary

	if team.Succeeded() {
		s.SucceededTeams++
	} else {
		s.FailedTeams++
	}

	switch team.Outcome {
	case OutcomeCreated:
		s.ReposCreated++
	case OutcomeAlreadyExists:
		s.ReposExisting++
	}

	if team.Plan != nil {
		s.UnresolvedMembers += len(team.Plan.Unresolved)
	}
	if team.Apply != nil {
		s.CollaboratorsAdded += len(team.Apply.Added)
		s.CollaboratorsGone += len(team.Apply.Removed)
		s.FailedCalls += team.Apply.Failed()
	}
	if team.Published {
		s.VariablesPublished++
	}
}

// TeamSyncer provisions repositories and reconciles collaborators for a roster, one team at a time
type TeamSyncer struct {
	client      APIClient
	opts        SyncOptions
	provisioner *Provisioner
	logger      *zap.Logger
}

// NewTeamSyncer creates a syncer over client
func NewTeamSyncer(client APIClient, opts SyncOptions) *TeamSyncer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Extractor == nil {
		opts.Extractor = identity.NewExtractor(opts.Host)
	}
	if opts.Description == nil {
		opts.Description = func(team roster.Team) string { return team.Name }
	}

	return &TeamSyncer{
		client: client,
		opts:   opts,
		provisioner: NewProvisioner(client, opts.Owner, ProvisionerOptions{
			Private:         opts.Private,
			LicenseTemplate: opts.LicenseTemplate,
			DryRun:          opts.DryRun,
			Logger:          opts.Logger,
		}),
		logger: opts.Logger,
	}
}

// Run syncs every team. Non-approved teams abort the run before any API call.
// Per-team failures are recorded and never stop later teams; cancellation is
// honored between teams.
func (s *TeamSyncer) Run(ctx context.Context, teams []roster.Team) (*SyncResult, error) {
	if err := roster.ValidateApproved(teams); err != nil {
		return nil, err
	}

	protected, err := s.loadProtected(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range s.opts.Reporters {
		r.ProtectedLoaded(protected.Len())
	}

	throttle := NewThrottle(s.opts.OperationDelay)
	reconciler := NewReconciler(s.client, s.opts.Owner, ReconcilerOptions{
		Permission: s.opts.Permission,
		Protected:  protected,
		Extractor:  s.opts.Extractor,
		Throttle:   throttle,
		Logger:     s.logger,
	})

	result := &SyncResult{Summary: SyncSummary{TotalTeams: len(teams), ProtectedMembers: protected.Len()}}
	defer func() {
		result.Throttle = throttle.Stats()
		s.logger.Info("sync finished",
			zap.Int("succeeded", result.Summary.SucceededTeams),
			zap.Int("failed", result.Summary.FailedTeams),
			zap.Int64("throttled_calls", result.Throttle.TotalWaits),
			zap.Duration("throttle_delay", result.Throttle.TotalDelayTime),
			zap.Bool("aborted", result.Aborted))
	}()

	for i, team := range teams {
		if i > 0 && s.opts.TeamDelay > 0 {
			if err := sleepContext(ctx, s.opts.TeamDelay); err != nil {
				result.Aborted = true
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			return result, err
		}

		for _, r := range s.opts.Reporters {
			r.TeamStarted(i+1, len(teams), team)
		}

		teamResult := s.syncTeam(ctx, reconciler, protected, team)
		result.record(teamResult)

		for _, r := range s.opts.Reporters {
			r.TeamFinished(teamResult)
		}
	}

	return result, nil
}

// loadProtected fetches organization members once per run. A failure is fatal:
// without the protected set, administrators could be revoked.
func (s *TeamSyncer) loadProtected(ctx context.Context) (identity.Set, error) {
	members, err := s.client.ListOrganizationMembers(ctx, s.opts.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization members of %s: %w", s.opts.Owner, err)
	}

	protected := identity.NewSetFromStrings(members...)
	for _, login := range s.opts.ExtraProtected {
		if h, ok := s.opts.Extractor.Extract(login); ok {
			protected.Add(h)
		}
	}

	s.logger.Info("protected collaborators loaded",
		zap.String("organization", s.opts.Owner),
		zap.Int("count", protected.Len()))

	return protected, nil
}

func (s *TeamSyncer) syncTeam(ctx context.Context, reconciler Reconciler, protected identity.Set, team roster.Team) *TeamResult {
	repo := team.Nickname
	result := &TeamResult{
		Team:       team,
		Repository: repo,
		URL:        RepositoryURL(s.opts.Extractor.Host(), s.opts.Owner, repo),
		DryRun:     s.opts.DryRun,
	}
	logger := s.logger.With(zap.String("team", team.Nickname))

	outcome, err := s.provisioner.EnsureRepository(ctx, repo, s.opts.Description(team))
	result.Outcome = outcome
	if err != nil {
		result.Err = fmt.Errorf("failed to ensure repository %s: %w", repo, err)
		return result
	}

	if outcome == OutcomeWouldCreate {
		desired, unresolved := DesiredCollaborators(s.opts.Extractor, team)
		plan := Diff(identity.NewSet(), desired, protected)
		plan.Repository = repo
		plan.Unresolved = unresolved
		result.Plan = &plan
	} else {
		plan, err := reconciler.Plan(ctx, repo, team)
		if err != nil {
			result.Err = err
			logger.Error("collaborator plan failed", zap.Error(err))
			return result
		}
		result.Plan = plan
	}

	if s.opts.DryRun {
		return result
	}

	result.Apply = reconciler.Apply(ctx, result.Plan)
	if err := result.Apply.Err(); err != nil {
		result.Err = err
		logger.Warn("collaborator changes partially applied", zap.Error(err))
	}

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishRepository(context.WithoutCancel(ctx), team.Nickname, result.URL); err != nil {
			result.PublishErr = err
			logger.Error("repository URL publish failed", zap.Error(err))
		} else {
			result.Published = true
		}
	}

	return result
}

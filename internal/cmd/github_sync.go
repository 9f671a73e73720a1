package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hackops/pkg/envapi"
	"hackops/pkg/github"
	"hackops/pkg/metrics"
	"hackops/pkg/roster"
)

var (
	syncDryRun      bool
	syncPrefiltered bool
	syncTeams       []string
	syncMembersFile string
	syncNoEnvVars   bool
)

var githubSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create team repositories and reconcile collaborators",
	Long: `Create a repository for every approved team and make its collaborators
match the team members listed in the roster.

For each team, in roster order:
  1. Ensure the repository <organization>/<team nickname> exists
  2. Grant access to members missing from the collaborators
  3. Revoke access from collaborators who are not members, except
     organization members who are always preserved
  4. Publish the repository URL as the team's Repo variable

Failures are reported per team and never stop the remaining teams.

Examples:
  # Preview every change without writing anything
  hackops github sync --dry-run

  # Sync two teams only
  hackops github sync --teams rocket,comet

  # Accept a roster that still contains non-approved teams
  hackops github sync --prefiltered=false`,
	Args: cobra.NoArgs,
	RunE: runGitHubSync,
}

func init() {
	githubSyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show planned changes without creating repositories, changing collaborators or publishing variables")
	githubSyncCmd.Flags().BoolVar(&syncPrefiltered, "prefiltered", true, "Require every roster team to be approved; when false, non-approved teams are skipped")
	githubSyncCmd.Flags().StringSliceVar(&syncTeams, "teams", nil, "Comma-separated team nicknames to sync (default all)")
	githubSyncCmd.Flags().StringVar(&syncMembersFile, "members-file", "", "Members file mapping emails to GitHub profiles (overrides files.members)")
	githubSyncCmd.Flags().BoolVar(&syncNoEnvVars, "no-env-vars", false, "Do not publish the repository URL to the service")
	githubCmd.AddCommand(githubSyncCmd)
}

func runGitHubSync(cmd *cobra.Command, _ []string) error {
	started := time.Now()
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	teams, err := loadSyncTeams(rt)
	if err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Fprintln(out, "ℹ️  No approved teams to sync")
		return nil
	}

	describe, err := repositoryDescriber(cfg.Sync.RepoDescription, rt.logger)
	if err != nil {
		return err
	}

	client, err := rt.githubClient()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", github.GetAuthInstructions())
		return err
	}

	tokenInfo, err := client.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Authenticated as %s\n", tokenInfo.User)
	if syncDryRun {
		fmt.Fprintln(out, "🔍 Dry-run mode: no changes will be made")
	}

	console := &consoleReporter{out: out}
	opts := github.SyncOptions{
		Owner:           cfg.GitHub.Organization,
		Host:            cfg.GitHub.Host,
		Permission:      cfg.GitHub.Permission,
		Private:         cfg.GitHub.Private,
		LicenseTemplate: cfg.GitHub.LicenseTemplate,
		ExtraProtected:  cfg.GitHub.Protected,
		DryRun:          syncDryRun,
		OperationDelay:  cfg.Sync.OperationDelay,
		TeamDelay:       cfg.Sync.TeamDelay,
		Description:     describe,
		Reporters:       []github.SyncReporter{console},
		Logger:          rt.logger,
	}

	if cfg.Sync.PublishRepoURL && !syncNoEnvVars {
		publisher, err := repositoryPublisher(rt)
		if err != nil {
			return err
		}
		if publisher != nil {
			opts.Publisher = publisher
		}
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.File != "" {
		recorder = metrics.NewRecorder()
		opts.Reporters = append(opts.Reporters, recorder)
	}

	result, runErr := github.NewTeamSyncer(client, opts).Run(ctx, teams)

	if recorder != nil {
		recorder.Finish(started)
		if err := recorder.WriteTextfile(cfg.Metrics.File); err != nil {
			rt.logger.Warn("failed to write metrics", zap.Error(err))
		}
	}

	if result != nil {
		printSyncSummary(out, result, time.Since(started))
	}
	if runErr != nil {
		return runErr
	}
	if !result.Converged() {
		return fmt.Errorf("%w: %d of %d teams failed", ErrNotConverged, result.Summary.FailedTeams, result.Summary.TotalTeams)
	}
	return nil
}

func loadSyncTeams(rt *runtime) ([]roster.Team, error) {
	teams, err := roster.Load(rt.cfg.Files.Teams)
	if err != nil {
		return nil, err
	}

	if syncPrefiltered {
		if err := roster.ValidateApproved(teams); err != nil {
			return nil, fmt.Errorf("roster contains non-approved teams, use --prefiltered=false to skip them: %w", err)
		}
	} else {
		var rejected []roster.Team
		teams, rejected = roster.FilterApproved(teams)
		for _, team := range rejected {
			rt.logger.Info("skipping non-approved team",
				zap.String("team", team.Nickname),
				zap.String("status", team.Status))
		}
	}

	membersFile := rt.cfg.Files.Members
	if syncMembersFile != "" {
		membersFile = syncMembersFile
	}
	if membersFile != "" {
		links, err := roster.LoadMembers(membersFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			rt.logger.Warn("members file not found, using inline profile links only", zap.String("file", membersFile))
		case err != nil:
			return nil, err
		default:
			teams = roster.JoinProfiles(teams, links)
		}
	}

	return roster.Select(teams, syncTeams)
}

// repositoryPublisher returns nil when no service API key is configured
func repositoryPublisher(rt *runtime) (github.RepositoryPublisher, error) {
	if _, err := rt.cfg.RequireAPIKey(); err != nil {
		rt.logger.Warn("service API key not configured, repository URLs will not be published")
		return nil, nil
	}

	service, err := rt.serviceClient()
	if err != nil {
		return nil, err
	}
	return envapi.NewRepositoryPublisher(service, envapi.DefaultCatalog())
}

func repositoryDescriber(text string, logger *zap.Logger) (func(roster.Team) string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tmpl, err := template.New("description").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid sync.repo_description template: %w", err)
	}

	return func(team roster.Team) string {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, team); err != nil {
			logger.Warn("failed to render repository description", zap.String("team", team.Nickname), zap.Error(err))
			return team.Name
		}
		return buf.String()
	}, nil
}

// consoleReporter prints sync progress for humans
type consoleReporter struct {
	out io.Writer
}

func (r *consoleReporter) ProtectedLoaded(count int) {
	fmt.Fprintf(r.out, "🔐 Found %d organization members (will be preserved as collaborators)\n", count)
}

func (r *consoleReporter) TeamStarted(index, total int, team roster.Team) {
	fmt.Fprintf(r.out, "\n[%d/%d] 🚀 Processing team %s (%s)\n", index, total, team.Name, team.Nickname)
}

func (r *consoleReporter) TeamFinished(result *github.TeamResult) {
	switch result.Outcome {
	case github.OutcomeCreated:
		fmt.Fprintf(r.out, "  ✅ Repository created: %s\n", result.URL)
	case github.OutcomeAlreadyExists:
		fmt.Fprintf(r.out, "  ℹ️  Repository already exists: %s\n", result.URL)
	case github.OutcomeWouldCreate:
		fmt.Fprintf(r.out, "  + Repository: would create %s\n", result.URL)
	}

	if plan := result.Plan; plan != nil {
		for _, m := range plan.Unresolved {
			fmt.Fprintf(r.out, "  ⚠️  No GitHub profile for %s %s\n", m.Name, describeMember(m))
		}
		for _, h := range plan.ToAdd {
			fmt.Fprintf(r.out, "  + Collaborator: %s\n", h)
		}
		for _, h := range plan.ToRemove {
			fmt.Fprintf(r.out, "  - Collaborator: %s\n", h)
		}
		for _, h := range plan.Preserved {
			fmt.Fprintf(r.out, "  🛡️  Preserved organization member: %s\n", h)
		}
		if plan.IsEmpty() {
			fmt.Fprintln(r.out, "  ✓ Collaborators up to date")
		}
	}

	var partial *github.PartialFailureError
	if errors.As(result.Err, &partial) {
		for _, op := range partial.GetFailedOperations() {
			fmt.Fprintf(r.out, "  ❌ Failed to %s: %v\n", op, partial.Failed[op])
		}
		fmt.Fprintf(r.out, "  ⚠️  %d of %d collaborator changes applied\n",
			len(partial.GetSucceededOperations()), len(partial.GetSucceededOperations())+len(partial.Failed))
	} else if result.Err != nil {
		fmt.Fprintf(r.out, "  ❌ %v\n", result.Err)
	}

	if result.Published {
		fmt.Fprintf(r.out, "  📝 Published %s=%s\n", envapi.KeyRepo, result.URL)
	}
	if result.PublishErr != nil {
		fmt.Fprintf(r.out, "  ❌ %v\n", result.PublishErr)
	}
}

func describeMember(m github.UnresolvedMember) string {
	switch {
	case m.ProfileLink != "":
		return fmt.Sprintf("(unrecognized link %q)", m.ProfileLink)
	case m.Email != "":
		return fmt.Sprintf("(%s)", m.Email)
	default:
		return ""
	}
}

func printSyncSummary(out io.Writer, result *github.SyncResult, elapsed time.Duration) {
	s := result.Summary

	fmt.Fprintf(out, "\n📊 Summary (%s)\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Teams:          %d succeeded, %d failed, %d total\n", s.SucceededTeams, s.FailedTeams, s.TotalTeams)
	fmt.Fprintf(out, "  Repositories:   %d created, %d existing\n", s.ReposCreated, s.ReposExisting)
	fmt.Fprintf(out, "  Collaborators:  %d added, %d removed, %d failed calls\n", s.CollaboratorsAdded, s.CollaboratorsGone, s.FailedCalls)
	fmt.Fprintf(out, "  Protected:      %d organization members\n", s.ProtectedMembers)
	if s.UnresolvedMembers > 0 {
		fmt.Fprintf(out, "  Unresolved:     %d members without a GitHub profile\n", s.UnresolvedMembers)
	}
	if s.VariablesPublished > 0 {
		fmt.Fprintf(out, "  Published:      %d %s variables\n", s.VariablesPublished, envapi.KeyRepo)
	}
	if result.Throttle.TotalWaits > 0 {
		fmt.Fprintf(out, "  Throttle:       %d calls, %s waited\n",
			result.Throttle.TotalWaits, result.Throttle.TotalDelayTime.Round(time.Millisecond))
	}

	if result.Aborted {
		fmt.Fprintf(out, "\n⚠️  Run interrupted after %d of %d teams\n", len(result.Teams), s.TotalTeams)
		return
	}

	var failed []string
	for _, team := range result.Teams {
		if !team.Succeeded() {
			failed = append(failed, team.Repository)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(out, "\n❌ Failed teams: %s\n", strings.Join(failed, ", "))
		return
	}
	fmt.Fprintln(out, "\n🎉 All teams are in sync")
}

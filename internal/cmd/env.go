package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hackops/pkg/envapi"
	"hackops/pkg/roster"
	"hackops/pkg/teamenv"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Team environment variable commands",
	Long: `Commands for managing the environment variables the hackathon service
stores for every team.

Available commands:
  set       - Set one variable for one or every approved team
  get       - Show the variables of one or every team
  delete    - Delete one variable
  publish   - Publish catalog variables (URLs, merchant credentials, repository)
  generate  - Generate the team environment document with merchant passwords`,
}

var (
	envSetDescription string
	envSetCategory    string
	envSetSecure      bool
	envSetReadonly    bool
	envSetTeam        string
	envSetDryRun      bool
)

var envSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a variable for approved teams",
	Long: `Set a variable for one approved team, or for every approved team when --team is omitted.

Examples:
  hackops env set API_TIMEOUT 30 --category config
  hackops env set DB_PASSWORD s3cret --secure --readonly --team rocket`,
	Args: cobra.ExactArgs(2),
	RunE: runEnvSet,
}

var envGetTeam string

var envGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show team variables",
	Long:  "Show the variables of one team, or of every team when --team is omitted. Secure values are masked.",
	Args:  cobra.NoArgs,
	RunE:  runEnvGet,
}

var (
	envDeleteTeam   string
	envDeleteDryRun bool
)

var envDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a variable from approved teams",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvDelete,
}

func init() {
	envSetCmd.Flags().StringVar(&envSetDescription, "description", "", "Variable description")
	envSetCmd.Flags().StringVar(&envSetCategory, "category", envapi.DefaultCategory, "Variable category")
	envSetCmd.Flags().BoolVar(&envSetSecure, "secure", false, "Mark the value as secret")
	envSetCmd.Flags().BoolVar(&envSetReadonly, "readonly", false, "Prevent the team from editing the value")
	envSetCmd.Flags().StringVar(&envSetTeam, "team", "", "Team nickname (default every approved team)")
	envSetCmd.Flags().BoolVar(&envSetDryRun, "dry-run", false, "Show what would be set without calling the service")

	envGetCmd.Flags().StringVar(&envGetTeam, "team", "", "Team nickname (default every team)")

	envDeleteCmd.Flags().StringVar(&envDeleteTeam, "team", "", "Team nickname (default every approved team)")
	envDeleteCmd.Flags().BoolVar(&envDeleteDryRun, "dry-run", false, "Show what would be deleted without calling the service")

	envCmd.AddCommand(envSetCmd)
	envCmd.AddCommand(envGetCmd)
	envCmd.AddCommand(envDeleteCmd)
}

func runEnvSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	opts := envapi.VariableOptions{
		Description: envSetDescription,
		Category:    envSetCategory,
		Secure:      envSetSecure,
		Editable:    !envSetReadonly,
	}
	if err := envapi.ValidateVariable(key, value, opts); err != nil {
		return err
	}

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(selectedTeams(envSetTeam))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := value
	if opts.Secure {
		shown = teamenv.Mask(value)
	}
	fmt.Fprintf(out, "🔧 Setting %s=%s for %d teams\n", key, shown, len(teams))

	if envSetDryRun {
		for _, team := range teams {
			fmt.Fprintf(out, "  ~ %s: would set %s\n", team.Nickname, key)
		}
		return nil
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	failed := forEachTeam(cmd.Context(), out, rt.logger, teams, func(ctx context.Context, team roster.Team) error {
		return client.SetVariable(ctx, team.Nickname, key, value, opts)
	})
	return teamSummary(out, len(teams), failed)
}

func runEnvGet(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	var envs []envapi.TeamEnvironment
	if envGetTeam != "" {
		env, err := client.TeamVariables(cmd.Context(), envGetTeam)
		if err != nil {
			return fmt.Errorf("failed to get variables of team %s: %w", envGetTeam, err)
		}
		envs = []envapi.TeamEnvironment{*env}
	} else {
		envs, err = client.AllVariables(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get team variables: %w", err)
		}
	}

	printEnvironments(cmd.OutOrStdout(), envs)
	return nil
}

func printEnvironments(out io.Writer, envs []envapi.TeamEnvironment) {
	sort.SliceStable(envs, func(i, j int) bool { return envs[i].TeamSlug < envs[j].TeamSlug })

	for _, env := range envs {
		name := env.TeamSlug
		if env.TeamName != "" {
			name = fmt.Sprintf("%s (%s)", env.TeamName, env.TeamSlug)
		}
		fmt.Fprintf(out, "\n📦 %s: %d variables\n", name, len(env.Environment))

		for _, v := range env.Environment {
			value := v.Value
			if v.IsSecure {
				value = teamenv.Mask(value)
			}
			flags := ""
			if v.IsSecure {
				flags += " 🔒"
			}
			if !v.IsEditable {
				flags += " (read-only)"
			}
			fmt.Fprintf(out, "  %s=%s [%s]%s\n", v.Key, value, v.Category, flags)
		}
	}
}

func runEnvDelete(cmd *cobra.Command, args []string) error {
	key := args[0]

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(selectedTeams(envDeleteTeam))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🗑️  Deleting %s from %d teams\n", key, len(teams))

	if envDeleteDryRun {
		for _, team := range teams {
			fmt.Fprintf(out, "  ~ %s: would delete %s\n", team.Nickname, key)
		}
		return nil
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	failed := forEachTeam(cmd.Context(), out, rt.logger, teams, func(ctx context.Context, team roster.Team) error {
		err := client.DeleteVariable(ctx, team.Nickname, key)
		if envapi.IsNotFound(err) {
			return nil
		}
		return err
	})
	return teamSummary(out, len(teams), failed)
}

// forEachTeam runs fn for every team in order, reporting each result.
// Failures never stop later teams; cancellation does.
func forEachTeam(ctx context.Context, out io.Writer, logger *zap.Logger, teams []roster.Team, fn func(context.Context, roster.Team) error) int {
	failed := 0
	for i, team := range teams {
		if ctx.Err() != nil {
			failed += len(teams) - i
			fmt.Fprintf(out, "⚠️  Interrupted, %d teams not processed\n", len(teams)-i)
			break
		}

		if err := fn(ctx, team); err != nil {
			failed++
			logger.Error("team operation failed", zap.String("team", team.Nickname), zap.Error(err))
			fmt.Fprintf(out, "  ❌ %s: %v\n", team.Nickname, err)
			continue
		}
		fmt.Fprintf(out, "  ✅ %s\n", team.Nickname)
	}
	return failed
}

func teamSummary(out io.Writer, total, failed int) error {
	fmt.Fprintf(out, "\n📊 %d succeeded, %d failed, %d total\n", total-failed, failed, total)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d teams failed", ErrNotConverged, failed, total)
	}
	return nil
}

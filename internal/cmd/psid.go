package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hackops/pkg/envapi"
	"hackops/pkg/psid"
	"hackops/pkg/roster"
)

var psidDryRun bool

var psidCmd = &cobra.Command{
	Use:   "psid",
	Short: "Team payment account id (PSID) commands",
	Long: `Commands for managing the PSID variable of every approved team.

The hackathon service is the system of record: current values are always read
from it. Mapping files are CSV with a header row (team/teamNickname/nickname/Team
and psid/PSID/id/ID columns) or JSON, either an object of team to PSID or a
list of objects with the same field names.`,
}

var psidUpdateCmd = &cobra.Command{
	Use:   "update FILE",
	Short: "Update PSIDs from a mapping file",
	Long:  "Set the PSID of every approved team listed in the mapping file. Teams whose PSID already matches are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPSIDUpdate,
}

var psidListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the current PSID of every approved team",
	Args:  cobra.NoArgs,
	RunE:  runPSIDList,
}

var psidExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export current PSIDs to a CSV or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPSIDExport,
}

var psidSetCmd = &cobra.Command{
	Use:   "set TEAM VALUE",
	Short: "Set the PSID of one team",
	Args:  cobra.ExactArgs(2),
	RunE:  runPSIDSet,
}

func init() {
	psidUpdateCmd.Flags().BoolVar(&psidDryRun, "dry-run", false, "Show planned updates without calling the service")

	psidCmd.AddCommand(psidUpdateCmd)
	psidCmd.AddCommand(psidListCmd)
	psidCmd.AddCommand(psidExportCmd)
	psidCmd.AddCommand(psidSetCmd)
}

func psidDefinition() envapi.Definition {
	def, ok := envapi.DefaultCatalog().Lookup(envapi.KeyPSID)
	if !ok {
		panic("built-in catalog has no PSID definition")
	}
	return def
}

// currentPSIDs reads every team's PSID from the service
func currentPSIDs(ctx context.Context, client *envapi.Client) (psid.Mapping, error) {
	envs, err := client.AllVariables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current PSID values: %w", err)
	}
	return psid.Current(envs), nil
}

func runPSIDUpdate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	mapping, err := psid.Load(args[0])
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(nil)
	if err != nil {
		return err
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	current, err := currentPSIDs(cmd.Context(), client)
	if err != nil {
		return err
	}

	plan := psid.PlanUpdates(teams, mapping, current)

	fmt.Fprintf(out, "📋 Loaded %d PSID mappings for %d approved teams\n", len(mapping), len(teams))
	if len(plan.Unchanged) > 0 {
		fmt.Fprintf(out, "  ✓ Already up to date: %s\n", strings.Join(plan.Unchanged, ", "))
	}
	if len(plan.Unmapped) > 0 {
		fmt.Fprintf(out, "  ⚠️  No PSID in mapping: %s\n", strings.Join(plan.Unmapped, ", "))
	}
	if len(plan.Unknown) > 0 {
		fmt.Fprintf(out, "  ⚠️  Not an approved team: %s\n", strings.Join(plan.Unknown, ", "))
	}

	if len(plan.Changes) == 0 {
		fmt.Fprintln(out, "✅ Nothing to update")
		return nil
	}

	byTeam := make(map[string]psid.Change, len(plan.Changes))
	changed := make([]roster.Team, 0, len(plan.Changes))
	for _, change := range plan.Changes {
		byTeam[change.Team.Nickname] = change
		changed = append(changed, change.Team)
	}

	if psidDryRun {
		for _, change := range plan.Changes {
			fmt.Fprintf(out, "  ~ %s: %s → %s\n", change.Team.Nickname, displayPSID(change.Current), change.Desired)
		}
		return nil
	}

	def := psidDefinition()
	failed := forEachTeam(cmd.Context(), out, rt.logger, changed, func(ctx context.Context, team roster.Team) error {
		return client.SetVariable(ctx, team.Nickname, def.Key, byTeam[team.Nickname].Desired, def.Options())
	})
	return teamSummary(out, len(changed), failed)
}

func runPSIDList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(nil)
	if err != nil {
		return err
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	current, err := currentPSIDs(cmd.Context(), client)
	if err != nil {
		return err
	}

	set := 0
	for _, team := range teams {
		value := current[team.Nickname]
		if psid.IsSet(value) {
			set++
		}
		fmt.Fprintf(out, "  %s: %s\n", team.Nickname, displayPSID(value))
	}
	fmt.Fprintf(out, "\n📊 %d of %d teams have a PSID\n", set, len(teams))
	return nil
}

func runPSIDExport(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams(nil)
	if err != nil {
		return err
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	current, err := currentPSIDs(cmd.Context(), client)
	if err != nil {
		return err
	}

	exported := psid.Mapping{}
	slugs := make([]string, 0, len(teams))
	for _, team := range teams {
		if v := current[team.Nickname]; psid.IsSet(v) {
			exported[team.Nickname] = v
			slugs = append(slugs, team.Nickname)
		}
	}

	if err := psid.Export(args[0], exported, slugs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported %d PSID values to %s\n", len(exported), args[0])
	return nil
}

func runPSIDSet(cmd *cobra.Command, args []string) error {
	slug, value := args[0], strings.TrimSpace(args[1])

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	teams, err := rt.approvedTeams([]string{slug})
	if err != nil {
		return err
	}

	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	def := psidDefinition()
	if err := client.SetVariable(cmd.Context(), teams[0].Nickname, def.Key, value, def.Options()); err != nil {
		return fmt.Errorf("failed to set PSID of team %s: %w", slug, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: PSID=%s\n", slug, value)
	return nil
}

func displayPSID(v string) string {
	if !psid.IsSet(v) {
		return "(not set)"
	}
	return v
}

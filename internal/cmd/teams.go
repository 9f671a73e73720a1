package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hackops/pkg/roster"
)

var (
	teamsRemote bool
	teamsStatus string
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Team roster commands",
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approved teams",
	Long: `List the approved teams of the local roster with their status and member count.

With --remote the teams are read from the hackathon service instead.`,
	Args: cobra.NoArgs,
	RunE: runTeamsList,
}

func init() {
	teamsListCmd.Flags().BoolVar(&teamsRemote, "remote", false, "Read teams from the service instead of the roster file")
	teamsListCmd.Flags().StringVar(&teamsStatus, "status", roster.StatusApproved, "Team status to request with --remote (empty for all)")
	teamsCmd.AddCommand(teamsListCmd)
}

func runTeamsList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	if teamsRemote {
		return listRemoteTeams(cmd, rt, out)
	}

	teams, err := rt.approvedTeams(nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📋 Found %d approved teams\n\n", len(teams))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NICKNAME\tNAME\tSTATUS\tMEMBERS\tLEVEL")
	for _, team := range teams {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", team.Nickname, team.Name, team.Status, team.Size(), team.Level)
	}
	return w.Flush()
}

func listRemoteTeams(cmd *cobra.Command, rt *runtime, out io.Writer) error {
	client, err := rt.serviceClient()
	if err != nil {
		return err
	}

	teams, err := client.ListTeams(cmd.Context(), teamsStatus)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	fmt.Fprintf(out, "📋 Found %d teams at %s\n\n", len(teams), client.BaseURL())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NICKNAME\tNAME\tSTATUS\tLEVEL")
	for _, team := range teams {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", team.Nickname, team.Name, team.Status, team.Level)
	}
	return w.Flush()
}

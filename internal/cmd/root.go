package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ErrNotConverged is returned when at least one team or variable failed
var ErrNotConverged = errors.New("run finished with failures")

var (
	configFile    string
	envFile       string
	teamsFile     string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "hackops",
	Short: "Provision hackathon team repositories and environments",
	Long: `Hackops is a command-line tool for hackathon organizers. It creates a GitHub
repository for every approved team, keeps each repository's collaborators in line
with the team roster, and manages the per-team environment variables stored in
the hackathon service.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Configuration file (default ~/.hackops/config.yaml)")
	flags.StringVar(&envFile, "env-file", "", "Dotenv file loaded before the environment (default .env)")
	flags.StringVar(&teamsFile, "teams-file", "", "Approved teams roster (overrides files.teams)")
	flags.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFormatFlag, "log-format", "", "Log format: structured or console")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(githubCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(psidCmd)
}

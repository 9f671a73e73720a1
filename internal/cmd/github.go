package cmd

import (
	"github.com/spf13/cobra"
)

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "GitHub repository management commands",
	Long: `Commands for managing team repositories on GitHub.

Available commands:
  sync     - Create team repositories and reconcile their collaborators

The roster is the desired state: every approved team gets a repository named
after its nickname, and its members become collaborators. Organization members
are never removed from a repository.`,
}

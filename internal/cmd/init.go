package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hackops/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize hackops configuration",
	Long:  "Create a default configuration file for hackops",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file without asking")
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	configPath := configFile
	if configPath == "" {
		var err error
		configPath, err = config.GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Fprintf(out, "⚠️  Configuration file already exists at: %s\n", configPath)
		fmt.Fprint(out, "Do you want to overwrite it? (y/N): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if r := strings.TrimSpace(response); r != "y" && r != "Y" {
			fmt.Fprintln(out, "Configuration initialization cancelled.")
			return nil
		}
	}

	defaultConfig := defaultConfiguration()
	if err := defaultConfig.SaveConfigToPath(configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(out, "✅ Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "📝 Please edit the file to set your GitHub token and service API key.")

	return nil
}

// defaultConfiguration mirrors config.Defaults with the terminal-independent log format
func defaultConfiguration() *config.Config {
	return &config.Config{
		GitHub: config.GitHubConfig{
			Organization:    "hackload-kz",
			Host:            "github.com",
			Permission:      "push",
			LicenseTemplate: "mit",
			Protected:       []string{},
			Cache:           true,
		},
		Service: config.ServiceConfig{
			BaseURL:    "https://hub.hackload.kz",
			BaseDomain: "hub.hackload.kz",
			Timeout:    10 * time.Second,
		},
		Sync: config.SyncConfig{
			OperationDelay:  500 * time.Millisecond,
			TeamDelay:       2 * time.Second,
			PublishRepoURL:  true,
			RepoDescription: "HackLoad 2025 - Репозиторий команды {{.Name}}",
		},
		Files: config.FilesConfig{
			Teams:       "approved-teams.json",
			Members:     "approved-members.json",
			Environment: "team-env-config.json",
		},
		Log: config.LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

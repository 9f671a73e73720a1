package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hackops/internal/logging"
	"hackops/pkg/config"
	"hackops/pkg/envapi"
	"hackops/pkg/github"
	"hackops/pkg/roster"
)

// runtime is everything a command needs, resolved once per invocation
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	runID  string
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	loaded, err := config.Load(config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config

	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Log.Format = logFormatFlag
	}
	if teamsFile != "" {
		cfg.Files.Teams = teamsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.NewFactory().Create(logging.Level(cfg.Log.Level), logging.Format(cfg.Log.Format))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	runID := logging.NewRunID()
	logger = logging.WithRun(logger, runID, cmd.CommandPath())
	if loaded.ConfigFileUsed != "" {
		logger.Debug("configuration loaded", zap.String("file", loaded.ConfigFileUsed))
	}

	return &runtime{cfg: cfg, logger: logger, runID: runID}, nil
}

func (rt *runtime) close() {
	_ = rt.logger.Sync()
}

func (rt *runtime) githubClient() (*github.Client, error) {
	token, err := rt.cfg.RequireGitHubToken()
	if err != nil {
		return nil, err
	}
	return github.NewClient(token, github.ClientOptions{
		Host:       rt.cfg.GitHub.Host,
		BaseURL:    rt.cfg.GitHub.APIURL,
		MaxRetries: rt.cfg.GitHub.MaxRetries,
		Cache:      rt.cfg.GitHub.Cache,
	})
}

func (rt *runtime) serviceClient() (*envapi.Client, error) {
	apiKey, err := rt.cfg.RequireAPIKey()
	if err != nil {
		return nil, err
	}

	log := logging.Logr(rt.logger.Named("envapi"))
	return envapi.NewClient(envapi.Options{
		BaseURL:    rt.cfg.Service.BaseURL,
		APIKey:     apiKey,
		Timeout:    rt.cfg.Service.Timeout,
		RetryMax:   rt.cfg.Service.RetryMax,
		Logger:     log,
		HTTPLogger: logging.NewLeveledLogger(log),
	})
}

// approvedTeams loads the roster, drops non-approved teams and applies the selection
func (rt *runtime) approvedTeams(selection []string) ([]roster.Team, error) {
	teams, err := roster.Load(rt.cfg.Files.Teams)
	if err != nil {
		return nil, err
	}

	approved, rejected := roster.FilterApproved(teams)
	if len(rejected) > 0 {
		rt.logger.Info("skipping non-approved teams", zap.Int("count", len(rejected)))
	}

	return roster.Select(approved, selection)
}

// selectedTeams returns the single --team selection, or nil for every team
func selectedTeams(team string) []string {
	if team = strings.TrimSpace(team); team == "" {
		return nil
	}
	return []string{team}
}

func (rt *runtime) templateData(team roster.Team) envapi.TemplateData {
	return envapi.TemplateData{
		Slug:       team.Nickname,
		Name:       team.Name,
		Org:        rt.cfg.GitHub.Organization,
		Host:       rt.cfg.GitHub.Host,
		BaseURL:    rt.cfg.Service.BaseURL,
		BaseDomain: rt.cfg.Service.BaseDomain,
	}
}

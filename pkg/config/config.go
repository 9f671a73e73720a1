package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingToken is returned when a GitHub operation runs without a token
	ErrMissingToken = errors.New("no GitHub token found: set GITHUB_TOKEN or github.token in ~/.hackops/config.yaml")
	// ErrMissingAPIKey is returned when a service operation runs without an API key
	ErrMissingAPIKey = errors.New("no service API key found: set SERVICE_API_KEY or service.api_key in ~/.hackops/config.yaml")
)

// Config represents the hackops configuration. It is built once per process
// and passed to every component explicitly.
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Files   FilesConfig   `mapstructure:"files" yaml:"files"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// GitHubConfig controls repository provisioning and collaborator management
type GitHubConfig struct {
	Token           string   `mapstructure:"token" yaml:"token"`
	Organization    string   `mapstructure:"organization" yaml:"organization"`
	Host            string   `mapstructure:"host" yaml:"host"`
	APIURL          string   `mapstructure:"api_url" yaml:"api_url"`
	Permission      string   `mapstructure:"permission" yaml:"permission"`
	Private         bool     `mapstructure:"private" yaml:"private"`
	LicenseTemplate string   `mapstructure:"license_template" yaml:"license_template"`
	MaxRetries      int      `mapstructure:"max_retries" yaml:"max_retries"`
	Protected       []string `mapstructure:"protected" yaml:"protected"`
	Cache           bool     `mapstructure:"cache" yaml:"cache"`
}

// ServiceConfig points at the team environment service API
type ServiceConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	BaseDomain string        `mapstructure:"base_domain" yaml:"base_domain"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RetryMax   int           `mapstructure:"retry_max" yaml:"retry_max"`
}

// SyncConfig tunes the team synchronization loop
type SyncConfig struct {
	OperationDelay  time.Duration `mapstructure:"operation_delay" yaml:"operation_delay"`
	TeamDelay       time.Duration `mapstructure:"team_delay" yaml:"team_delay"`
	PublishRepoURL  bool          `mapstructure:"publish_repo_url" yaml:"publish_repo_url"`
	RepoDescription string        `mapstructure:"repo_description" yaml:"repo_description"`
}

// FilesConfig names the local input and output files
type FilesConfig struct {
	Teams       string `mapstructure:"teams" yaml:"teams"`
	Members     string `mapstructure:"members" yaml:"members"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// LogConfig selects the zap logger level and encoding
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the prometheus textfile written at the end of a run
type MetricsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Defaults returns the default value of every recognized option keyed by its dotted name
func Defaults() map[string]any {
	return map[string]any{
		"github.token":            "",
		"github.organization":     "hackload-kz",
		"github.host":             "github.com",
		"github.api_url":          "",
		"github.permission":       "push",
		"github.private":          false,
		"github.license_template": "mit",
		"github.max_retries":      0,
		"github.protected":        []string{},
		"github.cache":            true,
		"service.base_url":        "https://hub.hackload.kz",
		"service.api_key":         "",
		"service.base_domain":     "hub.hackload.kz",
		"service.timeout":         10 * time.Second,
		"service.retry_max":       0,
		"sync.operation_delay":    500 * time.Millisecond,
		"sync.team_delay":         2 * time.Second,
		"sync.publish_repo_url":   true,
		"sync.repo_description":   "HackLoad 2025 - Репозиторий команды {{.Name}}",
		"files.teams":             "approved-teams.json",
		"files.members":           "approved-members.json",
		"files.environment":       "team-env-config.json",
		"log.level":               "info",
		"log.format":              defaultLogFormat(),
		"metrics.file":            "",
	}
}

func defaultLogFormat() string {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "console"
	}
	return "structured"
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".hackops", "config.yaml"), nil
}

// SaveConfig saves configuration to the default location
func (c *Config) SaveConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveConfigToPath(configPath)
}

// SaveConfigToPath saves configuration to a specific path. The file may hold
// secrets, so it is written owner-readable only.
func (c *Config) SaveConfigToPath(path string) error {
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c.document())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// document renders durations as strings so the saved file stays editable
func (c *Config) document() map[string]any {
	protected := c.GitHub.Protected
	if protected == nil {
		protected = []string{}
	}
	return map[string]any{
		"github": map[string]any{
			"token":            c.GitHub.Token,
			"organization":     c.GitHub.Organization,
			"host":             c.GitHub.Host,
			"api_url":          c.GitHub.APIURL,
			"permission":       c.GitHub.Permission,
			"private":          c.GitHub.Private,
			"license_template": c.GitHub.LicenseTemplate,
			"max_retries":      c.GitHub.MaxRetries,
			"protected":        protected,
			"cache":            c.GitHub.Cache,
		},
		"service": map[string]any{
			"base_url":    c.Service.BaseURL,
			"api_key":     c.Service.APIKey,
			"base_domain": c.Service.BaseDomain,
			"timeout":     c.Service.Timeout.String(),
			"retry_max":   c.Service.RetryMax,
		},
		"sync": map[string]any{
			"operation_delay":  c.Sync.OperationDelay.String(),
			"team_delay":       c.Sync.TeamDelay.String(),
			"publish_repo_url": c.Sync.PublishRepoURL,
			"repo_description": c.Sync.RepoDescription,
		},
		"files": map[string]any{
			"teams":       c.Files.Teams,
			"members":     c.Files.Members,
			"environment": c.Files.Environment,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"metrics": map[string]any{
			"file": c.Metrics.File,
		},
	}
}

var validPermissions = map[string]bool{
	"pull":     true,
	"triage":   true,
	"push":     true,
	"maintain": true,
	"admin":    true,
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"structured": true, "console": true}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.GitHub.Organization) == "" {
		errs.Add("github.organization", "", "organization is required")
	}
	if strings.TrimSpace(c.GitHub.Host) == "" {
		errs.Add("github.host", "", "host is required")
	}
	if !validPermissions[c.GitHub.Permission] {
		errs.Add("github.permission", c.GitHub.Permission, "must be one of pull, triage, push, maintain, admin")
	}
	if c.GitHub.APIURL != "" {
		if u, err := url.Parse(c.GitHub.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add("github.api_url", c.GitHub.APIURL, "must be an absolute URL")
		}
	}
	if c.GitHub.MaxRetries < 0 {
		errs.Add("github.max_retries", fmt.Sprint(c.GitHub.MaxRetries), "must not be negative")
	}

	if u, err := url.Parse(c.Service.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add("service.base_url", c.Service.BaseURL, "must be an absolute URL")
	}
	if c.Service.Timeout < 0 {
		errs.Add("service.timeout", c.Service.Timeout.String(), "must not be negative")
	}
	if c.Service.RetryMax < 0 {
		errs.Add("service.retry_max", fmt.Sprint(c.Service.RetryMax), "must not be negative")
	}

	if c.Sync.OperationDelay < 0 {
		errs.Add("sync.operation_delay", c.Sync.OperationDelay.String(), "must not be negative")
	}
	if c.Sync.TeamDelay < 0 {
		errs.Add("sync.team_delay", c.Sync.TeamDelay.String(), "must not be negative")
	}

	if !validLogLevels[c.Log.Level] {
		errs.Add("log.level", c.Log.Level, "must be one of debug, info, warn, error")
	}
	if !validLogFormats[c.Log.Format] {
		errs.Add("log.format", c.Log.Format, "must be structured or console")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// RequireGitHubToken returns ErrMissingToken when no token is configured
func (c *Config) RequireGitHubToken() (string, error) {
	token := strings.TrimSpace(c.GitHub.Token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// RequireAPIKey returns ErrMissingAPIKey when no service key is configured
func (c *Config) RequireAPIKey() (string, error) {
	key := strings.TrimSpace(c.Service.APIKey)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}

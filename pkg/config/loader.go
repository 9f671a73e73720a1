package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	environmentPrefix = "HACKOPS"
	configName        = "config"
	configType        = "yaml"
	defaultEnvFile    = ".env"
)

// conventionalEnv maps options to the unprefixed variables operators already export.
// The prefixed HACKOPS_* form always takes precedence.
var conventionalEnv = map[string]string{
	"github.token":        "GITHUB_TOKEN",
	"github.organization": "GITHUB_ORG",
	"service.api_key":     "SERVICE_API_KEY",
	"service.base_url":    "API_BASE_URL",
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	// ConfigFile is an explicit file path. Empty searches ~/.hackops/config.yaml.
	ConfigFile string
	// EnvFile is a dotenv file loaded before environment lookups. Empty uses ".env".
	EnvFile string
}

// Loaded pairs the resolved configuration with the file it came from, if any
type Loaded struct {
	Config         *Config
	ConfigFileUsed string
}

// Load resolves configuration from defaults, the config file, the dotenv file
// and the environment, in increasing order of precedence.
func Load(opts LoadOptions) (*Loaded, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".hackops"))
	}

	v.SetEnvPrefix(environmentPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	for key, name := range conventionalEnv {
		prefixed := environmentPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.GitHub.Token = strings.TrimSpace(cfg.GitHub.Token)
	cfg.Service.APIKey = strings.TrimSpace(cfg.Service.APIKey)
	cfg.Service.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Service.BaseURL), "/")

	return &Loaded{Config: &cfg, ConfigFileUsed: v.ConfigFileUsed()}, nil
}

// Package config loads distill settings from flags, environment variables,
// an optional .distill.yaml file and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jmylchreest/distill/internal/validate"
	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/keypool"
	"github.com/jmylchreest/distill/pkg/quota"
	"github.com/jmylchreest/distill/pkg/usage"
)

// EnvPrefix prefixes every environment variable, e.g. DISTILL_USAGE_DRIVER.
const EnvPrefix = "DISTILL"

// Credential source kinds.
const (
	SourceStore = "store"
	SourceFile  = "file"
)

// Config holds the application configuration.
type Config struct {
	// ResourcesFile optionally overrides or extends the shipped catalog.
	ResourcesFile string           `mapstructure:"resources_file"`
	Usage         usage.Config     `mapstructure:"usage"`
	Credentials   CredentialConfig `mapstructure:"credentials"`
	Provider      ProviderConfig   `mapstructure:"provider"`
	Extract       extractor.Config `mapstructure:"extract"`
	Log           LogConfig        `mapstructure:"log"`
}

// CredentialConfig selects where API keys come from.
type CredentialConfig struct {
	// Source is "store" for the credentials table or "file" for a YAML file.
	Source string `mapstructure:"source" validate:"oneof=store file"`
	File   string `mapstructure:"file" validate:"required_if=Source file"`
	// Watch reloads the file source when it changes.
	Watch bool `mapstructure:"watch"`
	// Driver and DSN address the credentials table. Empty values reuse the
	// usage store when it is relational.
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn"`
}

// ProviderConfig holds request settings shared by every backend.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Temperature float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"gt=0"`
	System      string        `mapstructure:"system"`
}

// LogConfig mirrors logger.Options.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `mapstructure:"json"`
	Debug bool   `mapstructure:"debug"`
	Quiet bool   `mapstructure:"quiet"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Usage: usage.DefaultConfig(),
		Credentials: CredentialConfig{
			Source: SourceStore,
		},
		Provider: ProviderConfig{
			Timeout:     300 * time.Second,
			Temperature: 0.1,
			MaxTokens:   16384,
		},
		Extract: extractor.DefaultConfig(),
	}
}

// SetDefaults registers every default on v so that environment variables
// bind to nested keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"resources_file":       d.ResourcesFile,
		"usage.driver":         d.Usage.Driver,
		"usage.dsn":            d.Usage.DSN,
		"credentials.source":   d.Credentials.Source,
		"credentials.file":     d.Credentials.File,
		"credentials.watch":    d.Credentials.Watch,
		"credentials.driver":   d.Credentials.Driver,
		"credentials.dsn":      d.Credentials.DSN,
		"provider.base_url":    d.Provider.BaseURL,
		"provider.timeout":     d.Provider.Timeout,
		"provider.temperature": d.Provider.Temperature,
		"provider.max_tokens":  d.Provider.MaxTokens,
		"provider.system":      d.Provider.System,
		"extract.resource":     d.Extract.Resource,
		"extract.chunk_budget": d.Extract.ChunkBudget,
		"extract.max_workers":  d.Extract.MaxWorkers,
		"extract.max_attempts": d.Extract.MaxAttempts,
		"extract.max_depth":    d.Extract.MaxDepth,
		"extract.max_tasks":    d.Extract.MaxTasks,
		"extract.max_waits":    d.Extract.MaxWaits,
		"extract.backoff":      d.Extract.Backoff,
		"extract.min_wait":     d.Extract.MinWait,
		"extract.max_wait":     d.Extract.MaxWait,
		"extract.context":      d.Extract.Context,
		"log.level":            d.Log.Level,
		"log.json":             d.Log.JSON,
		"log.debug":            d.Log.Debug,
		"log.quiet":            d.Log.Quiet,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Setup prepares v to read configuration: defaults, the DISTILL_ environment
// and the config file. An explicit file must exist; the implicit
// .distill.yaml lookup in the working and home directories may find nothing.
func Setup(v *viper.Viper, file string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName(".distill")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Catalog returns the shipped catalog merged with ResourcesFile, and checks
// that the configured resource exists.
func (c *Config) Catalog() (*quota.Catalog, error) {
	catalog := quota.DefaultCatalog()
	if c.ResourcesFile != "" {
		overrides, err := quota.LoadFile(c.ResourcesFile)
		if err != nil {
			return nil, err
		}
		if catalog, err = catalog.Merge(overrides); err != nil {
			return nil, err
		}
	}
	if _, ok := catalog.Lookup(c.Extract.Resource); !ok {
		return nil, fmt.Errorf("%w: %s", keypool.ErrUnknownResource, c.Extract.Resource)
	}
	return catalog, nil
}

// EnvPaths lists the .env files LoadEnv tries, in order.
func EnvPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "distill", ".env"))
	}
	return paths
}

// LoadEnv loads the first .env file found in paths. Variables already set in
// the environment win. It returns the loaded path, or "" when none existed.
func LoadEnv(paths ...string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return path, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

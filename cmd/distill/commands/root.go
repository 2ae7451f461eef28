// Package commands implements the CLI commands for distill.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/distill/internal/config"
	"github.com/jmylchreest/distill/internal/logger"
)

// cfg is populated by the root pre-run hook before any command body runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Quota-aware structured extraction of news feeds",
	Long: `Distill turns a feed of news articles into structured event records.

Articles are packed into token-budgeted chunks and sent to a generation
service through a pool of API credentials that respects per-key request
and token quotas. Malformed or truncated responses are repaired, every
headline is checked for coverage, and missing items are retried, split
or salvaged until the feed is covered.

Examples:
  # Register a key and extract a feed
  distill keys add primary --secret "$GEMINI_API_KEY" --tier free
  distill extract -i news.json -o records.json

  # Use a paid resource and write the synthesis digest
  distill extract -i news.jsonl -r gemini-2.5-flash-paid --format digest

  # Inspect quota consumption
  distill usage`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./.distill.yaml or $HOME/.distill.yaml)")
	flags.String("env-file", "", ".env file to load (default ./.env or ~/.config/distill/.env)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "only log errors")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("log-level", "", "log level: debug, info, warn, error")
}

// flagKeys maps flag names to the config keys they override.
var flagKeys = map[string]string{
	"debug":        "log.debug",
	"quiet":        "log.quiet",
	"log-json":     "log.json",
	"log-level":    "log.level",
	"resource":     "extract.resource",
	"workers":      "extract.max_workers",
	"chunk-budget": "extract.chunk_budget",
	"max-attempts": "extract.max_attempts",
	"max-depth":    "extract.max_depth",
	"context":      "extract.context",
}

// bindFlags binds the flags cmd actually has, so unset flags fall through
// to the file, environment and defaults.
func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func setup(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	paths := config.EnvPaths()
	if envFile != "" {
		paths = []string{envFile}
	}
	loaded, err := config.LoadEnv(paths...)
	if err != nil {
		return err
	}

	if err := bindFlags(cmd); err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.Setup(viper.GetViper(), cfgFile); err != nil {
		return err
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = c

	if err := logger.Init(logger.Options{
		Debug: cfg.Log.Debug,
		Quiet: cfg.Log.Quiet,
		JSON:  cfg.Log.JSON,
		Level: cfg.Log.Level,
	}); err != nil {
		logger.Warn("ignoring log level", "error", err)
	}

	if loaded != "" {
		logger.Debug("loaded env file", "path", loaded)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config file", "path", used)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

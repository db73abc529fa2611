package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"keytally/internal/config"
	"keytally/internal/logging"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "keytally",
	Short: "Key combo logger with frequency statistics",
	Long: `keytally records every keystroke as a normalized combo such as "a",
"<enter>" or "<ctrl> + c", and reports key, bigram and trigram frequencies
over the recorded log.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate("keytally version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"config file (default: config.{toml,json,yaml} in ., $KEYTALLY_HOME or $XDG_CONFIG_HOME/keytally)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"override logging.level (debug, info, warn, error)")
}

// configPath resolves the config file: flag, then search path, then the
// default location.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

// applyFlags layers command line overrides on cfg.
func applyFlags(cfg *config.Config) error {
	if logLevelFlag == "" {
		return nil
	}
	cfg.Logging.Level = logLevelFlag
	return cfg.Validate()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger described by cfg.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	l, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.LogPath(),
		MaxSize:    int64(cfg.Logging.MaxSizeMB) << 20,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		RedactKeys: !cfg.Logging.ShowKeys,
		Component:  "keytally",
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return l, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so
// commands can stop their source and flush queued entries.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

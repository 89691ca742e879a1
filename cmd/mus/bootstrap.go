package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mus/pkg/mus/config"
	"github.com/jamesainslie/mus/pkg/mus/logging"
)

// initializeLogging is the PersistentPreRunE hook. It makes sure the XDG
// directories exist and points every component logger at the log file.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := ensureDirectories(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return setupLogging(cfg, consoleLevel(getDebug(), getQuiet(), viper.GetBool("tui")))
}

// shutdownLogging closes the log file once the command returns.
func shutdownLogging(_ *cobra.Command, _ []string) error {
	return logging.Close()
}

func ensureDirectories() error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// loadConfig decodes the merged flag, environment and file settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, console string) error {
	logCfg, err := cfg.LogConfig()
	if err != nil {
		return err
	}
	logCfg.ConsoleLevel = console

	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// consoleLevel picks what gets echoed to stderr. The TUI owns the terminal,
// so nothing is echoed while it runs.
func consoleLevel(debug, quiet, tui bool) string {
	switch {
	case tui || quiet:
		return ""
	case debug:
		return "debug"
	default:
		return "warn"
	}
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mus/pkg/mus/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage mus configuration settings.

Configuration is loaded from:
  1. --config, when given
  2. $XDG_CONFIG_HOME/mus/config.yaml (if set)
  3. ~/.config/mus/config.yaml

Environment variables can override config file settings using the MUS_ prefix:
  MUS_WORKERS=4
  MUS_ALGORITHM=sha3-256
  MUS_MANIFEST_EXTENSION=md5`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the environment variables that map to config keys.
var envOverrides = []string{
	"workers",
	"algorithm",
	"buffer_size",
	"exclude",
	"manifest.extension",
	"manifest.header",
	"history.enabled",
	"history.path",
	"history.retention_days",
	"logging.level",
	"logging.path",
}

// envName returns the environment variable for a config key.
func envName(key string) string {
	return "MUS_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		if _, statErr := os.Stat(configFile); statErr == nil {
			fmt.Printf("Config file: %s\n\n", configFile)
		} else {
			fmt.Printf("Config file: %s (not found, using defaults)\n\n", configFile)
		}
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("workers:                 %s\n", workersLabel(cfg.Workers))
	fmt.Printf("algorithm:               %s\n", cfg.Algorithm)
	fmt.Printf("buffer_size:             %s\n", cfg.BufferSize)
	fmt.Printf("exclude:                 %v\n", cfg.Exclude)
	fmt.Printf("manifest.extension:      %s\n", cfg.Manifest.Extension)
	fmt.Printf("manifest.header:         %s\n", cfg.Manifest.Header)
	fmt.Printf("history.enabled:         %t\n", cfg.History.Enabled)
	fmt.Printf("history.path:            %s\n", cfg.HistoryPath())
	fmt.Printf("history.retention:       %d days\n", cfg.History.RetentionDays)
	fmt.Printf("logging.level:           %s\n", cfg.Logging.Level)
	fmt.Printf("logging.path:            %s\n", logPathLabel(cfg.Logging.Path))

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, key := range envOverrides {
		name := envName(key)
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

func workersLabel(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprint(n)
}

func logPathLabel(path string) string {
	if path == "" {
		return "(default)"
	}
	return path
}

// configTarget returns the file init and path operate on.
func configTarget() (string, error) {
	if cfgFile != "" {
		return config.ExpandPath(cfgFile)
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return path, nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configTarget()
	if err != nil {
		return err
	}

	written, err := config.WriteDefault(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !written {
		printInfo("Config file already exists: %s", path)
		return nil
	}

	printInfo("Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configTarget()
	if err != nil {
		return err
	}

	fmt.Println(path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}

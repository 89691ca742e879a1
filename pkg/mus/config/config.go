package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/logging"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ManifestConfig configures how manifests are named and written.
type ManifestConfig struct {
	Extension string `mapstructure:"extension"`
	Header    string `mapstructure:"header"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	Workers    int            `mapstructure:"workers"`
	Algorithm  string         `mapstructure:"algorithm"`
	BufferSize string         `mapstructure:"buffer_size"`
	Exclude    []string       `mapstructure:"exclude"`
	Manifest   ManifestConfig `mapstructure:"manifest"`
	History    HistoryConfig  `mapstructure:"history"`
	Logging    LoggingConfig  `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("algorithm", DefaultAlgorithm)
	v.SetDefault("buffer_size", DefaultBufferSize)
	v.SetDefault("exclude", DefaultExclusions)

	v.SetDefault("manifest.extension", DefaultExtension)
	v.SetDefault("manifest.header", DefaultHeader)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use the logging package default
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{})
}

// Configure points v at the config file (or the default search path) and
// the MUS_ environment, and registers defaults.
func Configure(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("MUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// ReadInConfig reads the configured file. A missing file is not an error.
func ReadInConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// FromViper decodes the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	history, err := ExpandPath(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	cfg.History.Path = history

	logPath, err := ExpandPath(cfg.Logging.Path)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Path = logPath

	return &cfg, nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - file, when not empty
//   - $XDG_CONFIG_HOME/mus/config.yaml
//   - $HOME/.config/mus/config.yaml
//
// Environment variables are prefixed with MUS_ (e.g., MUS_WORKERS).
func Load(file string) (*Config, error) {
	v := viper.New()
	Configure(v, file)
	if err := ReadInConfig(v); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppName), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/mus/ for the history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir returns $XDG_STATE_HOME/mus/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// HistoryPath returns the configured history path or the default.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

// DigestAlgorithm parses the configured algorithm.
func (c *Config) DigestAlgorithm() (digest.Algorithm, error) {
	return digest.ParseAlgorithm(c.Algorithm)
}

// BufferBytes parses the configured read buffer size. It returns 0 for
// "auto".
func (c *Config) BufferBytes() (int, error) {
	if strings.EqualFold(strings.TrimSpace(c.BufferSize), AutoBufferSize) {
		return 0, nil
	}
	n, err := types.ParseSize(c.BufferSize)
	if err != nil {
		return 0, fmt.Errorf("buffer_size: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("buffer_size: %w: must be positive", types.ErrInvalidSize)
	}
	return int(n), nil
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Logging.Rotation.MaxSize != "" {
		n, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = n
	}
	rotation.MaxAge = c.Logging.Rotation.MaxAge
	rotation.MaxBackups = c.Logging.Rotation.MaxBackups

	return logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Rotation:   rotation,
		Components: c.Logging.Components,
	}, nil
}

// WriteDefault writes a default config file to path if none exists.
// It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	var components strings.Builder
	for _, name := range []string{"engine", "manifest", "history", "cli"} {
		fmt.Fprintf(&components, "    %s: %s\n", name, DefaultComponentLevels[name])
	}

	defaultConfig := fmt.Sprintf(`# mus configuration

# Number of hashing workers (0 means number of CPUs + 1)
workers: %d

# Digest algorithm for new manifests: md5 (format 1) or sha3-256 (format 2)
algorithm: %s

# Read buffer per worker, e.g. 64KiB, or auto to size it from available memory
buffer_size: %s

# Glob patterns skipped when generating manifests
exclude:
  - .DS_Store
  - Thumbs.db

manifest:
  # Extension of manifest files, also used to find them when verifying
  extension: %s
  # First line comment of new manifests
  header: %s

# Run history
history:
  enabled: true
  # Empty means use default: $XDG_DATA_HOME/mus/history
  path: ""
  retention_days: %d

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/mus/mus.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
  # Per-component log levels
  components:
%s`, DefaultWorkers, DefaultAlgorithm, DefaultBufferSize, DefaultExtension, DefaultHeader,
		DefaultRetentionDays, components.String())

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default config: %w", err)
	}
	return true, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

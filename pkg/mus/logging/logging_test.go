package logging_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/mus/pkg/mus/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"verbose", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := logging.ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, logging.ErrInvalidLevel) {
				t.Errorf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitRejectsBadComponentLevel(t *testing.T) {
	// No t.Parallel() - uses global state

	err := logging.Init(logging.Config{
		Level:      "info",
		Path:       filepath.Join(t.TempDir(), "bad.log"),
		Components: map[string]string{"engine": "loud"},
	})
	if err == nil {
		_ = logging.Close()
		t.Fatal("Init() expected error for invalid component level")
	}
}

func TestLoggerBeforeInitIsSilent(t *testing.T) {
	// No t.Parallel() - uses global state

	logger := logging.Get("early")
	logger.Info("nobody hears this")

	if logger.Component() != "early" {
		t.Errorf("Component() = %q, want early", logger.Component())
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	// No t.Parallel() - uses global state

	logPath := filepath.Join(t.TempDir(), "write.log")

	// Obtained before Init, so this also checks loggers are rebuilt in place.
	logger := logging.Get("manifest")

	if err := logging.Init(logging.Config{Level: "debug", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logger.Info("manifest loaded", "entries", 3)
	logger.With("path", "a.mu5").Debug("decoding")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	for _, want := range []string{"manifest loaded", "entries=3", "decoding", "a.mu5"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log file missing %q, got: %s", want, content)
		}
	}
}

func TestComponentLevelOverride(t *testing.T) {
	// No t.Parallel() - uses global state

	logPath := filepath.Join(t.TempDir(), "levels.log")

	err := logging.Init(logging.Config{
		Level:      "warn",
		Path:       logPath,
		Components: map[string]string{"engine": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("engine").Debug("engine debug should appear")
	logging.Get("history").Info("history info should not appear")
	logging.Get("history").Warn("history warn should appear")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	logContent := string(content)

	if !strings.Contains(logContent, "engine debug should appear") {
		t.Error("component override did not lower the engine level")
	}
	if strings.Contains(logContent, "history info should not appear") {
		t.Error("info message written below the default warn level")
	}
	if !strings.Contains(logContent, "history warn should appear") {
		t.Error("warn message missing")
	}
}

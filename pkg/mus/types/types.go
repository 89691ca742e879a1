// Package types provides the value types shared between the mus engine and
// its front ends: run states, status snapshots, and helpers for rendering
// sizes, speeds and durations.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Mode selects what a run does with the files it catalogs.
type Mode int

const (
	// ModeGenerate hashes a fresh directory walk to produce a manifest.
	ModeGenerate Mode = iota
	// ModeVerify re-checks files against digests recorded in manifests.
	ModeVerify
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	if m == ModeVerify {
		return "verify"
	}
	return "generate"
}

// State is the lifecycle state of an engine run.
// States only ever move forward: New, Building, Calculating, Finished.
type State int32

const (
	StateNew State = iota
	StateBuilding
	StateCalculating
	StateFinished
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateBuilding:
		return "building"
	case StateCalculating:
		return "calculating"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateNew, StateBuilding, StateCalculating, StateFinished} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Unmeasurable is the sentinel used for speeds and estimates that cannot be
// computed yet.
const Unmeasurable int64 = -1

// Status is a point-in-time snapshot of an engine run.
type Status struct {
	State State `json:"state" yaml:"state"`

	// TotalFiles is the number of cataloged files (discovered so far while building).
	TotalFiles int `json:"total_files" yaml:"total_files"`

	// TotalBytes is the sum of all file sizes (declared so far while building).
	TotalBytes int64 `json:"total_bytes" yaml:"total_bytes"`

	// ProcessedBytes is the number of bytes hashed so far.
	ProcessedBytes int64 `json:"processed_bytes" yaml:"processed_bytes"`

	DoneOK int `json:"done_ok" yaml:"done_ok"`

	// DoneKO counts every failed file, missing ones included.
	DoneKO      int `json:"done_ko" yaml:"done_ko"`
	DoneMissing int `json:"done_missing" yaml:"done_missing"`

	// PercentDoneBp is progress in basis points (0..10000).
	PercentDoneBp int `json:"percent_done_bp" yaml:"percent_done_bp"`

	// BytesPerSecond is the average throughput, or Unmeasurable.
	BytesPerSecond int64 `json:"bytes_per_second" yaml:"bytes_per_second"`

	// SecondsRemaining is the estimated time left while calculating, or
	// Unmeasurable. It is always zero once the run has finished.
	SecondsRemaining int64 `json:"seconds_remaining" yaml:"seconds_remaining"`

	// ElapsedSeconds is the time spent calculating so far (the total once finished).
	ElapsedSeconds int64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

// Done returns the number of files that reached a terminal state.
func (s Status) Done() int {
	return s.DoneOK + s.DoneKO
}

// Percent returns the progress as a fraction between 0 and 1.
func (s Status) Percent() float64 {
	return float64(s.PercentDoneBp) / 10000
}

// sizePattern matches size strings like "100M", "2G", "64KiB", "1.5GB".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize parses a human-readable size ("64K", "1MiB", "4096") into bytes.
// Units are always binary.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize renders a byte count with binary units, or "--" when negative.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "--"
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSpeed renders a throughput in bytes per second, or "--" when unmeasurable.
func FormatSpeed(bps int64) string {
	if bps < 0 {
		return "--"
	}
	return humanize.IBytes(uint64(bps)) + "/s"
}

// FormatSeconds renders a duration in whole seconds, or "--" when unmeasurable.
func FormatSeconds(seconds int64) string {
	switch {
	case seconds < 0:
		return "--"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
	}
}

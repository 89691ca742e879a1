// Package output provides formatters for mus run reports in various output
// formats (pretty, plain, json, yaml, etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// FileStatus is the outcome of one file in a report.
type FileStatus string

const (
	StatusOK        FileStatus = "ok"
	StatusCorrupted FileStatus = "corrupted"
	StatusMissing   FileStatus = "missing"
	StatusPending   FileStatus = "pending"
)

// FileResult describes one cataloged file for output formatting.
type FileResult struct {
	// Path is the absolute path to the file.
	Path string `json:"path" yaml:"path"`

	// RelPath is the path relative to the report source, with '/' separators.
	RelPath string `json:"rel_path" yaml:"rel_path"`

	Size      int64  `json:"size" yaml:"size"`
	SizeHuman string `json:"size_human" yaml:"size_human"`

	Status FileStatus `json:"status" yaml:"status"`

	// Digest is the computed digest, when the file was hashed successfully.
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`

	// Expected is the digest declared by the manifest.
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`

	// Cause explains a failure.
	Cause string `json:"cause,omitempty" yaml:"cause,omitempty"`
}

// Failed reports whether the file ended in a failure.
func (f FileResult) Failed() bool {
	return f.Status == StatusCorrupted || f.Status == StatusMissing
}

// Report contains the complete output data for formatting.
type Report struct {
	// Mode is "generate" or "verify".
	Mode string `json:"mode" yaml:"mode"`

	// Source is the common ancestor of every file.
	Source string `json:"source" yaml:"source"`

	// Manifest is the manifest written, or the manifests read.
	Manifest []string `json:"manifest,omitempty" yaml:"manifest,omitempty"`

	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// Files lists every cataloged file in catalog order.
	Files []FileResult `json:"files" yaml:"files"`

	Status   types.Status  `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Warnings contains non-fatal problems such as manifests that failed
	// their integrity check.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Interrupted indicates the run was cancelled before every file was processed.
	Interrupted bool `json:"interrupted" yaml:"interrupted"`
}

// NewReport builds a report from a finished catalog.
func NewReport(cat *catalog.Catalog, status types.Status) *Report {
	r := &Report{
		Mode:     cat.Mode().String(),
		Source:   cat.CommonAncestor(),
		Files:    make([]FileResult, 0, cat.Len()),
		Status:   status,
		Duration: time.Duration(status.ElapsedSeconds) * time.Second,
	}

	for i, rec := range cat.Records() {
		fr := FileResult{
			Path:      rec.Path,
			RelPath:   cat.RelPath(i),
			Size:      rec.Size,
			SizeHuman: types.FormatSize(rec.Size),
			Digest:    rec.Computed,
			Expected:  rec.Expected,
		}
		switch rec.State {
		case catalog.Verified:
			fr.Status = StatusOK
		case catalog.Failed:
			fr.Status = StatusCorrupted
			if rec.Err == catalog.CauseMissing {
				fr.Status = StatusMissing
			}
			fr.Cause = rec.Err
		default:
			fr.Status = StatusPending
		}
		r.Files = append(r.Files, fr)
	}

	return r
}

// Failures returns the files that failed, in catalog order.
func (r *Report) Failures() []FileResult {
	return r.filter(func(f FileResult) bool { return f.Failed() })
}

// Corrupted returns the files that were present but did not verify.
func (r *Report) Corrupted() []FileResult {
	return r.filter(func(f FileResult) bool { return f.Status == StatusCorrupted })
}

// Missing returns the files that no longer exist.
func (r *Report) Missing() []FileResult {
	return r.filter(func(f FileResult) bool { return f.Status == StatusMissing })
}

func (r *Report) filter(keep func(FileResult) bool) []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// TotalSize returns the sum of all file sizes in the report.
func (r *Report) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Succeeded reports whether every file verified and nothing was skipped.
func (r *Report) Succeeded() bool {
	return !r.Interrupted && len(r.Warnings) == 0 && len(r.Failures()) == 0
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

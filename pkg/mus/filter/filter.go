// Package filter decides which walked files take part in a run, using glob
// patterns matched against the full path and against the base name.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Filter holds compiled include and exclude patterns.
// The zero value matches every path.
type Filter struct {
	include []pattern
	exclude []pattern
}

type pattern struct {
	source string
	g      glob.Glob
}

// Option is a functional option for configuring a Filter.
type Option func(*options)

type options struct {
	include []string
	exclude []string
}

// WithInclude sets the include glob patterns.
// If any patterns are specified, files must match at least one to be included.
func WithInclude(patterns ...string) Option {
	return func(o *options) {
		o.include = append(o.include, patterns...)
	}
}

// WithExclude sets the exclude glob patterns.
// Files and directories matching any pattern are skipped.
func WithExclude(patterns ...string) Option {
	return func(o *options) {
		o.exclude = append(o.exclude, patterns...)
	}
}

// New compiles the configured patterns. Empty patterns are ignored.
func New(opts ...Option) (*Filter, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	include, err := compile(o.include)
	if err != nil {
		return nil, err
	}
	exclude, err := compile(o.exclude)
	if err != nil {
		return nil, err
	}
	return &Filter{include: include, exclude: exclude}, nil
}

func compile(sources []string) ([]pattern, error) {
	var out []pattern
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		g, err := glob.Compile(filepath.ToSlash(src), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", src, err)
		}
		out = append(out, pattern{source: src, g: g})
	}
	return out, nil
}

// Excluded reports whether path matches an exclude pattern. The walker uses
// it for directories too, so a match prunes the whole subtree.
func (f *Filter) Excluded(path string) bool {
	if f == nil {
		return false
	}
	return matchAny(f.exclude, path)
}

// Match reports whether the file at path should be included.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}
	if matchAny(f.exclude, path) {
		return false
	}
	return len(f.include) == 0 || matchAny(f.include, path)
}

// Patterns returns the exclude patterns as given, for logging.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.exclude))
	for _, p := range f.exclude {
		out = append(out, p.source)
	}
	return out
}

func matchAny(patterns []pattern, path string) bool {
	if len(patterns) == 0 {
		return false
	}
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, p := range patterns {
		if p.g.Match(slashed) || p.g.Match(base) {
			return true
		}
	}
	return false
}

// Package engine drives a single mus run: it builds a catalog from a
// directory walk or from manifests, hashes every file on a bounded worker
// pool, and exposes live progress through Status.
//
// An Engine is single-use. Its state only moves forward through
// New, Building, Calculating and Finished; calling Run a second time fails
// with ErrAlreadyUsed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

var (
	// ErrAlreadyUsed is returned when Run is called on an engine that has
	// already been started.
	ErrAlreadyUsed = errors.New("engine already used")

	// ErrNoFiles is returned when the catalog is empty after building.
	ErrNoFiles = errors.New("no files to process")
)

// Engine orchestrates one generation or verification run.
type Engine struct {
	mode   types.Mode
	inputs []string
	opts   options

	cat    *catalog.Catalog
	totals totals

	state   atomic.Int32
	started atomic.Int64
	ended   atomic.Int64

	// completed is set when no work was left undone, before the state
	// moves to Finished.
	completed atomic.Bool

	mu          sync.Mutex
	manifestErr error
	manifests   []string
}

// ForFiles returns an engine that hashes the given files and directory trees
// to generate a manifest.
func ForFiles(paths []string, opts ...Option) *Engine {
	return newEngine(types.ModeGenerate, paths, opts)
}

// ForManifests returns an engine that verifies the files listed by the given
// manifests. Directories are searched for manifests with the configured
// extension.
func ForManifests(paths []string, opts ...Option) *Engine {
	return newEngine(types.ModeVerify, paths, opts)
}

func newEngine(mode types.Mode, paths []string, opts []Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var catOpts []catalog.Option
	if o.hasher != nil {
		catOpts = append(catOpts, catalog.WithHasher(o.hasher))
	} else {
		catOpts = append(catOpts, catalog.WithHasher(digest.Hasher{BufferSize: o.bufferSize}))
	}

	return &Engine{
		mode:   mode,
		inputs: append([]string(nil), paths...),
		opts:   o,
		cat:    catalog.New(mode, catOpts...),
	}
}

// Mode returns whether the engine generates or verifies.
func (e *Engine) Mode() types.Mode {
	return e.mode
}

// Algorithm returns the algorithm used for generated digests.
func (e *Engine) Algorithm() digest.Algorithm {
	return e.opts.algorithm
}

// Catalog returns the catalog built by the run. It must not be read while
// the engine is building.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// ManifestErr returns the non-fatal integrity error collected while loading
// manifests, or nil.
func (e *Engine) ManifestErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifestErr
}

// Manifests returns the manifests discovered by a verification run.
func (e *Engine) Manifests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.manifests...)
}

// State returns the current lifecycle state.
func (e *Engine) State() types.State {
	return types.State(e.state.Load())
}

// Status returns a snapshot of the run. It is safe to call from any
// goroutine at any time and is recomputed on every call.
func (e *Engine) Status() types.Status {
	state := e.State()
	return computeStatus(state, e.totals.load(), unixTime(e.started.Load()), unixTime(e.ended.Load()), e.opts.clock(), e.completed.Load())
}

func unixTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Run executes the run with the given number of workers (at least one).
// Fatal errors are reported to the listener's OnError and returned. A
// manifest integrity error is reported but only returned when no usable
// records remain.
func (e *Engine) Run(ctx context.Context, workers int) (err error) {
	if !e.state.CompareAndSwap(int32(types.StateNew), int32(types.StateBuilding)) {
		e.opts.listener.OnError(ErrAlreadyUsed)
		return ErrAlreadyUsed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
		if e.State() != types.StateFinished {
			e.finish(false)
		}
		// An integrity error returned here has already been reported.
		if err != nil && err != e.ManifestErr() {
			e.opts.logger.Error("run failed", "mode", e.mode, "error", err)
			e.opts.listener.OnError(err)
		}
	}()

	return e.run(ctx, max(workers, 1))
}

func (e *Engine) run(ctx context.Context, workers int) error {
	logger := e.opts.logger
	logger.Info("building catalog", "mode", e.mode, "inputs", len(e.inputs))
	e.opts.listener.OnBuilding()

	var err error
	if e.mode == types.ModeGenerate {
		err = e.buildFromFiles(ctx)
	} else {
		err = e.buildFromManifests(ctx)
	}
	if err != nil {
		return err
	}

	if e.cat.IsEmpty() {
		now := e.opts.clock().UnixNano()
		e.started.Store(now)
		e.finish(true)
		if mErr := e.ManifestErr(); mErr != nil {
			return mErr
		}
		return ErrNoFiles
	}

	if e.mode == types.ModeGenerate {
		if _, err := e.opts.algorithm.New(); err != nil {
			return err
		}
	}

	e.settleTotals()

	e.started.Store(e.opts.clock().UnixNano())
	e.state.Store(int32(types.StateCalculating))
	logger.Info("calculating", "files", e.cat.Len(), "bytes", e.totals.bytes.Load(), "workers", workers)
	e.opts.listener.OnCalculating(e.Status())

	e.dispatch(ctx, workers)

	if err := ctx.Err(); err != nil {
		e.finish(false)
		return err
	}
	e.finish(true)

	final := e.Status()
	logger.Info("finished",
		"ok", final.DoneOK,
		"failed", final.DoneKO,
		"missing", final.DoneMissing,
		"elapsed", types.FormatSeconds(final.ElapsedSeconds),
	)
	e.opts.listener.OnFinished(final)
	return nil
}

// finish records the end time and moves the run to Finished.
func (e *Engine) finish(completed bool) {
	e.ended.Store(e.opts.clock().UnixNano())
	e.completed.Store(completed)
	e.state.Store(int32(types.StateFinished))
}

// settleTotals replaces the discovery counters with the exact catalog totals.
func (e *Engine) settleTotals() {
	var size int64
	for _, r := range e.cat.Records() {
		size += r.Size
	}
	e.totals.files.Store(int64(e.cat.Len()))
	e.totals.bytes.Store(size)
}

// dispatch runs one unit of work per record and waits for all of them.
// Cancellation stops further dispatch; units already started complete.
func (e *Engine) dispatch(ctx context.Context, workers int) {
	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < e.cat.Len(); i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			e.process(i)
			return nil
		})
	}

	_ = g.Wait()
}

func (e *Engine) process(i int) {
	rec := e.cat.At(i)

	defer func() {
		if r := recover(); r != nil {
			rec.State = catalog.Failed
			rec.Err = fmt.Sprintf("internal error: %v", r)
			e.totals.ko.Add(1)
			e.opts.logger.Error("worker panic", "path", rec.Path, "panic", r)
		}
	}()

	switch e.cat.ComputeOrVerify(i, e.opts.algorithm, e.totals.addProcessed) {
	case catalog.Ok:
		e.totals.ok.Add(1)
	case catalog.Missing:
		e.totals.missing.Add(1)
		e.totals.ko.Add(1)
		e.opts.logger.Debug("file missing", "path", rec.Path)
	default:
		e.totals.ko.Add(1)
		e.opts.logger.Debug("file failed", "path", rec.Path, "cause", rec.Err)
	}
}

type walked struct {
	path string
	size int64
}

// buildFromFiles walks every input and adds the regular files found.
func (e *Engine) buildFromFiles(ctx context.Context) error {
	for _, input := range e.inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", input, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		if !info.IsDir() {
			if _, seen := e.cat.Lookup(abs); !seen {
				e.cat.AddRecord(abs, info.Size(), "", "")
				e.totals.files.Add(1)
				e.totals.bytes.Add(info.Size())
			}
			continue
		}

		e.cat.AddPath(abs)
		found, err := e.walk(ctx, abs)
		if err != nil {
			return err
		}
		for _, f := range found {
			if _, seen := e.cat.Lookup(f.path); !seen {
				e.cat.AddRecord(f.path, f.size, "", "")
			}
		}
	}
	return nil
}

// walk collects the regular files below root. Symlinks are not followed and
// excluded directories are skipped entirely.
func (e *Engine) walk(ctx context.Context, root string) ([]walked, error) {
	var (
		mu    sync.Mutex
		found []walked
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			e.opts.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if path == root {
			return nil
		}

		if d.IsDir() {
			if e.opts.filter.Excluded(path) {
				return fastwalk.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !e.opts.filter.Match(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			e.opts.logger.Warn("stat failed", "path", path, "error", err)
			return nil
		}

		e.totals.files.Add(1)
		e.totals.bytes.Add(info.Size())

		mu.Lock()
		found = append(found, walked{path: path, size: info.Size()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return found, nil
}

// buildFromManifests loads every manifest independently. Integrity failures
// are collected, reported once, and do not stop the run.
func (e *Engine) buildFromManifests(ctx context.Context) error {
	paths, err := DiscoverManifests(e.inputs, e.opts.extension)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.manifests = paths
	e.mu.Unlock()

	var failed []*manifest.IntegrityError
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		added, err := manifest.LoadInto(e.cat, path)
		var ie *manifest.IntegrityError
		switch {
		case errors.As(err, &ie):
			failed = append(failed, ie)
		case err != nil:
			return err
		}

		for _, r := range added {
			e.totals.files.Add(1)
			e.totals.bytes.Add(r.Size)
		}
		e.opts.logger.Debug("manifest loaded", "path", path, "records", len(added))
	}

	if joined := manifest.Join(failed...); joined != nil {
		e.mu.Lock()
		e.manifestErr = joined
		e.mu.Unlock()
		e.opts.logger.Warn("manifests failed integrity check", "count", len(joined.Paths))
		e.opts.listener.OnError(joined)
	}
	return nil
}

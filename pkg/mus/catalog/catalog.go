// Package catalog holds the path-sorted set of files a run works on, together
// with the deepest directory that contains all of them.
//
// A Catalog is filled by a single builder goroutine and is then fixed in
// membership. During hashing each record is owned by exactly one worker,
// which drives it through ComputeOrVerify.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

// DefaultManifestName is the base name suggested when nothing better is known.
const DefaultManifestName = "Checksum"

// RecordState is the per-file progress of a run.
type RecordState int32

const (
	Unset RecordState = iota
	InProgress
	Verified
	Failed
)

// String returns the lowercase name of the state.
func (s RecordState) String() string {
	switch s {
	case Unset:
		return "unset"
	case InProgress:
		return "in_progress"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one ComputeOrVerify call.
type Outcome int

const (
	Ok Outcome = iota
	Corrupted
	Missing
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case Corrupted:
		return "corrupted"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Causes recorded on failed records.
const (
	CauseMissing      = "file missing"
	CauseSizeMismatch = "file size mismatch"
)

// Record is a single file in a catalog.
type Record struct {
	// Path is the absolute, cleaned path of the file.
	Path string

	State RecordState

	// Expected is the digest declared by a manifest (verification only).
	Expected string

	// Computed is the digest produced by hashing (generation only).
	Computed string

	// Err is the human-readable failure cause once State is Failed.
	Err string

	// Size is the measured size (generation) or the declared size (verification).
	Size int64
}

// Result returns the digest or failure cause that describes the record.
func (r *Record) Result() string {
	switch {
	case r.State == Failed:
		return r.Err
	case r.Computed != "":
		return r.Computed
	default:
		return r.Expected
	}
}

// StreamHasher computes a digest over a stream.
type StreamHasher interface {
	Sum(r io.Reader, alg digest.Algorithm, onProgress func(n int64)) (string, error)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithHasher replaces the hasher used by ComputeOrVerify.
func WithHasher(h StreamHasher) Option {
	return func(c *Catalog) {
		if h != nil {
			c.hasher = h
		}
	}
}

// Catalog is an ordered, path-unique collection of records.
type Catalog struct {
	mode     types.Mode
	hasher   StreamHasher
	records  []*Record
	ancestor string
}

// New returns an empty catalog for the given mode.
func New(mode types.Mode, opts ...Option) *Catalog {
	c := &Catalog{
		mode:   mode,
		hasher: digest.Hasher{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the mode the catalog was created for.
func (c *Catalog) Mode() types.Mode {
	return c.mode
}

// AddPath registers path. Directories only widen the common ancestor and
// yield nil. For files the measured size is recorded; adding a path that is
// already present returns the existing record.
func (c *Catalog) AddPath(path string) *Record {
	path = clean(path)
	c.widen(path)

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return nil
	}

	rec, added := c.insert(path)
	if added && err == nil {
		rec.Size = info.Size()
	}
	return rec
}

// AddRecord registers a file declared by a manifest without touching the
// filesystem. A non-empty failure presets the record to Failed with that
// cause; otherwise expected is the digest to verify against.
func (c *Catalog) AddRecord(path string, size int64, expected, failure string) *Record {
	path = clean(path)
	c.widen(path)

	rec, added := c.insert(path)
	if !added {
		return rec
	}

	rec.Size = size
	if failure != "" {
		rec.State = Failed
		rec.Err = failure
	} else {
		rec.Expected = expected
	}
	return rec
}

func (c *Catalog) insert(path string) (*Record, bool) {
	i := sort.Search(len(c.records), func(i int) bool {
		return c.records[i].Path >= path
	})
	if i < len(c.records) && c.records[i].Path == path {
		return c.records[i], false
	}

	rec := &Record{Path: path}
	c.records = append(c.records, nil)
	copy(c.records[i+1:], c.records[i:])
	c.records[i] = rec
	return rec, true
}

// widen moves the ancestor up until it contains path. The first path seeds
// the ancestor with its parent directory.
func (c *Catalog) widen(path string) {
	if c.ancestor == "" {
		c.ancestor = filepath.Dir(path)
		return
	}
	for !within(c.ancestor, path) {
		parent := filepath.Dir(c.ancestor)
		if parent == c.ancestor {
			return
		}
		c.ancestor = parent
	}
}

// within reports whether path equals dir or lies below it, comparing whole
// path components.
func within(dir, path string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}

func clean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// CommonAncestor returns the deepest directory containing every added path,
// or "" when nothing has been added.
func (c *Catalog) CommonAncestor() string {
	return c.ancestor
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// IsEmpty reports whether the catalog has no records.
func (c *Catalog) IsEmpty() bool {
	return len(c.records) == 0
}

// At returns the i-th record in path order.
func (c *Catalog) At(i int) *Record {
	return c.records[i]
}

// Records returns the records in path order. The slice must not be modified.
func (c *Catalog) Records() []*Record {
	return c.records
}

// Lookup returns the record for path, if present.
func (c *Catalog) Lookup(path string) (*Record, bool) {
	path = clean(path)
	i := sort.Search(len(c.records), func(i int) bool {
		return c.records[i].Path >= path
	})
	if i < len(c.records) && c.records[i].Path == path {
		return c.records[i], true
	}
	return nil, false
}

// RelPath returns the path of the i-th record relative to the common
// ancestor, using forward slashes.
func (c *Catalog) RelPath(i int) string {
	return c.relPath(c.records[i].Path)
}

func (c *Catalog) relPath(path string) string {
	rel, err := filepath.Rel(c.ancestor, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// Failures returns the failed records in path order.
func (c *Catalog) Failures() []*Record {
	var failed []*Record
	for _, r := range c.records {
		if r.State == Failed {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuggestedManifestName proposes a manifest file name with extension ext.
// When every record sits below the same first component of the ancestor the
// component is used, otherwise the ancestor's own name.
func (c *Catalog) SuggestedManifestName(ext string) string {
	ext = strings.TrimPrefix(ext, ".")

	if c.IsEmpty() {
		return baseName(c.ancestor) + "." + ext
	}

	first := firstComponent(c.relPath(c.records[0].Path))
	for _, r := range c.records[1:] {
		if firstComponent(c.relPath(r.Path)) != first {
			return baseName(c.ancestor) + "." + ext
		}
	}
	return first + "." + ext
}

func firstComponent(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

func baseName(dir string) string {
	if dir == "" {
		return DefaultManifestName
	}
	base := filepath.Base(dir)
	if base == string(filepath.Separator) || base == "." || filepath.VolumeName(dir)+string(filepath.Separator) == dir {
		return DefaultManifestName
	}
	return base
}

// ComputeOrVerify hashes the i-th record and settles its state. In
// generation mode the digest is stored with alg; in verification mode it is
// compared with the expected digest, whose length selects the algorithm.
// onProgress receives the byte count of every read.
func (c *Catalog) ComputeOrVerify(i int, alg digest.Algorithm, onProgress func(n int64)) Outcome {
	rec := c.records[i]

	if rec.State == Failed {
		return Corrupted
	}

	rec.State = InProgress
	rec.Err = ""

	info, err := os.Stat(rec.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return rec.fail(CauseMissing, Missing)
	}
	if err != nil {
		return rec.fail(err.Error(), Corrupted)
	}

	verify := c.mode == types.ModeVerify
	if verify {
		if info.Size() != rec.Size {
			return rec.fail(fmt.Sprintf("%s (%d bytes on disk, %d expected)", CauseSizeMismatch, info.Size(), rec.Size), Corrupted)
		}
		if a, ok := digest.ForDigest(rec.Expected); ok {
			alg = a
		}
	}

	sum, err := c.hashFile(rec.Path, alg, onProgress)
	if err != nil {
		return rec.fail(err.Error(), Corrupted)
	}

	if !verify {
		rec.Computed = sum
	} else if !digest.Equal(sum, rec.Expected) {
		return rec.fail(fmt.Sprintf("corrupted file (got %s, expected %s)", sum, rec.Expected), Corrupted)
	}

	rec.State = Verified
	return Ok
}

func (c *Catalog) hashFile(path string, alg digest.Algorithm, onProgress func(n int64)) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the user's own inputs
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return c.hasher.Sum(f, alg, onProgress)
}

func (r *Record) fail(cause string, outcome Outcome) Outcome {
	r.State = Failed
	r.Err = cause
	return outcome
}

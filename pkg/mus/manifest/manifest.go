// Package manifest reads and writes mus manifest files.
//
// A manifest is UTF-8 text with CRLF line endings:
//
//	# File created with mus v1.2.0
//	e2fc714c4727ee9395f324cd2e7f331f<TAB>4<TAB>root/a.txt
//	file missing<TAB>0<TAB>root/b.txt
//	<digest of every preceding byte><TAB>This file
//
// The trailer has no line terminator. Its digest covers the exact bytes
// before it, so editing or truncating any earlier line is detectable. The
// trailer is optional when reading, for manifests written before it existed.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/logging"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

const (
	// DefaultExtension is the manifest file extension, without the dot.
	DefaultExtension = "mu5"

	// TrailerSuffix follows the self-checksum on the last line.
	TrailerSuffix = "\tThis file"

	// NotComputed is written for records that were never hashed.
	NotComputed = "not computed"

	// NoDigest is the failure cause of a line whose first field is empty.
	NoDigest = "no digest"

	lineEnd = "\r\n"
	sep     = '\t'
)

// Entry is one parsed manifest line.
type Entry struct {
	// Path is the absolute path, resolved against the manifest's directory.
	Path string

	Size int64

	// Digest is set when the first field is a well-formed digest.
	Digest string

	// Failure is set when the first field is a recorded error instead.
	Failure string
}

// IntegrityError reports manifests whose self-checksum does not match.
type IntegrityError struct {
	Paths []string
}

func (e *IntegrityError) Error() string {
	if len(e.Paths) == 1 {
		return "manifest failed integrity check: " + e.Paths[0]
	}
	return fmt.Sprintf("%d manifests failed integrity check: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// Join merges integrity errors into one. Nil arguments are skipped; it
// returns nil when nothing is left.
func Join(errs ...*IntegrityError) *IntegrityError {
	var paths []string
	for _, e := range errs {
		if e != nil {
			paths = append(paths, e.Paths...)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	return &IntegrityError{Paths: paths}
}

// Encoder writes catalogs in manifest format.
type Encoder struct {
	// Algorithm selects the self-checksum digest. Zero means MD5.
	Algorithm digest.Algorithm

	// Header, if set, is written as a comment on the first line.
	Header string
}

// Encode writes cat to w. Records appear in catalog order with paths
// relative to the catalog's common ancestor.
func (e Encoder) Encode(w io.Writer, cat *catalog.Catalog) error {
	alg := e.Algorithm
	if alg == 0 {
		alg = digest.MD5
	}

	var buf bytes.Buffer
	if e.Header != "" {
		buf.WriteString("# ")
		buf.WriteString(flatten(e.Header))
		buf.WriteString(lineEnd)
	}

	for i, rec := range cat.Records() {
		buf.WriteString(field(rec))
		buf.WriteByte(sep)
		buf.WriteString(strconv.FormatInt(rec.Size, 10))
		buf.WriteByte(sep)
		buf.WriteString(cat.RelPath(i))
		buf.WriteString(lineEnd)
	}

	sum, err := digest.SumBytes(buf.Bytes(), alg)
	if err != nil {
		return err
	}
	buf.WriteString(sum)
	buf.WriteString(TrailerSuffix)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// field returns the first column for rec.
func field(rec *catalog.Record) string {
	switch {
	case rec.State == catalog.Failed && rec.Err != "":
		return flatten(rec.Err)
	case rec.Computed != "":
		return rec.Computed
	case rec.Expected != "":
		return rec.Expected
	default:
		return NotComputed
	}
}

// flatten keeps free text on a single column.
func flatten(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\r', '\n':
			return ' '
		}
		return r
	}, s)
}

// WriteFile encodes cat into path, replacing any existing file atomically.
func WriteFile(path string, cat *catalog.Catalog, enc Encoder) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := enc.Encode(tmp, cat); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming manifest: %w", err)
	}

	logging.Get("manifest").Info("manifest written", "path", path, "records", cat.Len())
	return nil
}

// Decode parses manifest data. dir resolves the relative paths and name
// identifies the manifest in an IntegrityError. When the trailer does not
// match the data, the entries are still returned together with an
// *IntegrityError. Data without a trailer is parsed without a self-check.
func Decode(data []byte, dir, name string) ([]Entry, error) {
	candidates := trailers(data)
	if len(candidates) == 0 {
		return parseLines(data, dir, name), nil
	}

	for _, c := range candidates {
		sum, err := digest.SumBytes(c.body, c.alg)
		if err != nil {
			return nil, err
		}
		if digest.Equal(sum, c.sum) {
			return parseLines(c.body, dir, name), nil
		}
	}

	return parseLines(candidates[0].body, dir, name), &IntegrityError{Paths: []string{name}}
}

type trailer struct {
	alg  digest.Algorithm
	body []byte
	sum  string
}

// trailers returns the possible ways of splitting a self-checksum off data,
// longest digest first. A SHA3 trailer also ends in 32 hex characters, so
// both splits are tried before declaring a mismatch. When the suffix is
// present but neither split is hex, the MD5 split is still returned so that
// the damaged trailer fails the check.
func trailers(data []byte) []trailer {
	if !bytes.HasSuffix(data, []byte(TrailerSuffix)) {
		return nil
	}
	head := data[:len(data)-len(TrailerSuffix)]

	var out []trailer
	for _, alg := range []digest.Algorithm{digest.SHA3_256, digest.MD5} {
		n := alg.HexLen()
		if len(head) < n {
			continue
		}
		sum := string(head[len(head)-n:])
		if a, ok := digest.ForDigest(sum); ok && a == alg {
			out = append(out, trailer{alg: alg, body: head[:len(head)-n], sum: sum})
		}
	}

	if n := digest.MD5.HexLen(); len(out) == 0 && len(head) >= n {
		out = append(out, trailer{alg: digest.MD5, body: head[:len(head)-n], sum: string(head[len(head)-n:])})
	}
	return out
}

func parseLines(body []byte, dir, name string) []Entry {
	logger := logging.Get("manifest")

	var entries []Entry
	for n, raw := range strings.Split(string(body), "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if strings.Count(line, string(sep)) != 2 {
			continue
		}

		parts := strings.SplitN(line, string(sep), 3)
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || size < 0 {
			logger.Warn("skipping line with invalid size", "manifest", name, "line", n+1, "size", parts[1])
			continue
		}

		entry := Entry{
			Path: filepath.Join(dir, filepath.FromSlash(parts[2])),
			Size: size,
		}
		switch _, ok := digest.ForDigest(parts[0]); {
		case ok:
			entry.Digest = parts[0]
		case parts[0] == "":
			entry.Failure = NoDigest
		default:
			entry.Failure = parts[0]
		}
		entries = append(entries, entry)
	}
	return entries
}

// ReadFile reads and decodes the manifest at path.
func ReadFile(path string) ([]Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path: %w", err)
	}

	data, err := os.ReadFile(abs) // #nosec G304 -- manifest paths are user inputs
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	entries, err := Decode(data, filepath.Dir(abs), abs)
	if err != nil {
		var ie *IntegrityError
		if errors.As(err, &ie) {
			logging.Get("manifest").Warn("manifest failed integrity check", "path", abs)
		}
		return entries, err
	}

	logging.Get("manifest").Debug("manifest decoded", "path", abs, "entries", len(entries))
	return entries, nil
}

// LoadInto adds the entries of the manifest at path to cat and returns the
// records that were new to it. An *IntegrityError is returned alongside the
// records; any other error means nothing was added.
func LoadInto(cat *catalog.Catalog, path string) ([]*catalog.Record, error) {
	entries, err := ReadFile(path)
	var ie *IntegrityError
	if err != nil && !errors.As(err, &ie) {
		return nil, err
	}

	var added []*catalog.Record
	for _, e := range entries {
		if _, exists := cat.Lookup(e.Path); exists {
			continue
		}
		added = append(added, cat.AddRecord(e.Path, e.Size, e.Digest, e.Failure))
	}
	return added, err
}

// Read loads a single manifest into a new verification catalog.
func Read(path string, opts ...catalog.Option) (*catalog.Catalog, error) {
	cat := catalog.New(types.ModeVerify, opts...)
	_, err := LoadInto(cat, path)
	return cat, err
}

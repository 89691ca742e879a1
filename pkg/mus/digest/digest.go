// Package digest streams file contents through the digest algorithms used by
// mus manifests. Two algorithms exist, one per manifest format version, and a
// digest string identifies its own algorithm through its length.
package digest

import (
	"crypto/md5" // #nosec G501 -- format 1 manifests are MD5 based
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DefaultBufferSize is the read size used when a Hasher has none configured.
const DefaultBufferSize = 64 * 1024

// Algorithm identifies a digest algorithm.
type Algorithm int

const (
	// MD5 is the format 1 algorithm (128 bit, 32 hex characters).
	MD5 Algorithm = iota + 1
	// SHA3_256 is the format 2 algorithm (256 bit, 64 hex characters).
	SHA3_256
)

// ErrUnsupportedAlgorithm is returned when no digest can be produced for the
// requested algorithm.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

// String returns the canonical name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case MD5:
		return "md5"
	case SHA3_256:
		return "sha3-256"
	default:
		return "unknown"
	}
}

// HexLen returns the length of the hex representation of a digest.
func (a Algorithm) HexLen() int {
	switch a {
	case MD5:
		return 32
	case SHA3_256:
		return 64
	default:
		return 0
	}
}

// Format returns the manifest format version for the algorithm.
func (a Algorithm) Format() int {
	switch a {
	case MD5:
		return 1
	case SHA3_256:
		return 2
	default:
		return 0
	}
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil // #nosec G401 -- integrity check, not security
	case SHA3_256:
		return sha3.New256(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedAlgorithm, int(a))
	}
}

// ParseAlgorithm parses an algorithm name or format number.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md5", "1":
		return MD5, nil
	case "sha3-256", "sha3_256", "sha3", "2":
		return SHA3_256, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

// ForDigest infers the algorithm that produced a hex digest.
// It reports false when s is not a well-formed digest of a known algorithm.
func ForDigest(s string) (Algorithm, bool) {
	if !isHex(s) {
		return 0, false
	}
	switch len(s) {
	case MD5.HexLen():
		return MD5, true
	case SHA3_256.HexLen():
		return SHA3_256, true
	default:
		return 0, false
	}
}

// Equal compares two hex digests ignoring case.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Hasher computes digests over streams.
type Hasher struct {
	// BufferSize is the number of bytes read per step. Zero means DefaultBufferSize.
	BufferSize int
}

// Sum reads r to EOF and returns the lowercase hex digest.
// onProgress, if not nil, is called after every read with the bytes consumed.
func (h Hasher) Sum(r io.Reader, alg Algorithm, onProgress func(n int64)) (string, error) {
	hh, err := alg.New()
	if err != nil {
		return "", err
	}

	size := h.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			hh.Write(buf[:n])
			if onProgress != nil {
				onProgress(int64(n))
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("reading stream: %w", rerr)
		}
	}

	return hex.EncodeToString(hh.Sum(nil)), nil
}

// SumBytes returns the lowercase hex digest of data.
func SumBytes(data []byte, alg Algorithm) (string, error) {
	hh, err := alg.New()
	if err != nil {
		return "", err
	}
	hh.Write(data)
	return hex.EncodeToString(hh.Sum(nil)), nil
}

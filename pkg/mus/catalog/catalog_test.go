package catalog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

const md5abcd = "e2fc714c4727ee9395f324cd2e7f331f"

// countingHasher records how many files were actually hashed.
type countingHasher struct {
	calls atomic.Int32
}

func (h *countingHasher) Sum(r io.Reader, alg digest.Algorithm, onProgress func(n int64)) (string, error) {
	h.calls.Add(1)
	return digest.Hasher{}.Sum(r, alg, onProgress)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAddPath_SortedInsert(t *testing.T) {
	dir := t.TempDir()
	c := writeFile(t, filepath.Join(dir, "c.txt"), "c")
	a := writeFile(t, filepath.Join(dir, "a.txt"), "aa")
	b := writeFile(t, filepath.Join(dir, "b.txt"), "bbb")

	cat := New(types.ModeGenerate)
	for _, p := range []string{c, a, b} {
		require.NotNil(t, cat.AddPath(p))
	}

	require.Equal(t, 3, cat.Len())
	assert.Equal(t, a, cat.At(0).Path)
	assert.Equal(t, b, cat.At(1).Path)
	assert.Equal(t, c, cat.At(2).Path)
	assert.Equal(t, int64(3), cat.At(1).Size)
	assert.Equal(t, dir, cat.CommonAncestor())
}

func TestAddPath_DuplicateReturnsExisting(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "a")

	cat := New(types.ModeGenerate)
	first := cat.AddPath(a)
	second := cat.AddPath(a)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cat.Len())
}

func TestAddPath_DirectoryOnlyWidensAncestor(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "a.txt"), "abcd")

	cat := New(types.ModeGenerate)
	assert.Nil(t, cat.AddPath(root))
	assert.True(t, cat.IsEmpty())
	assert.Equal(t, dir, cat.CommonAncestor())

	cat.AddPath(filepath.Join(root, "a.txt"))
	assert.Equal(t, dir, cat.CommonAncestor())
	assert.Equal(t, "root/a.txt", cat.RelPath(0))
}

func TestCommonAncestor_ComponentWise(t *testing.T) {
	cat := New(types.ModeVerify)
	cat.AddRecord(filepath.FromSlash("/data/photos/a.jpg"), 1, md5abcd, "")
	cat.AddRecord(filepath.FromSlash("/data/photos2/b.jpg"), 1, md5abcd, "")

	// "/data/photos" is a string prefix of "/data/photos2" but not an ancestor.
	assert.Equal(t, filepath.FromSlash("/data"), cat.CommonAncestor())
	assert.Equal(t, "photos/a.jpg", cat.RelPath(0))
	assert.Equal(t, "photos2/b.jpg", cat.RelPath(1))
}

func TestCommonAncestor_EmptyCatalog(t *testing.T) {
	cat := New(types.ModeGenerate)
	assert.Equal(t, "", cat.CommonAncestor())
	assert.True(t, cat.IsEmpty())
}

func TestSuggestedManifestName(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{
			name:  "empty",
			paths: nil,
			want:  "Checksum.mu5",
		},
		{
			name:  "sibling subtrees",
			paths: []string{"/data/photos/2024/a.jpg", "/data/photos/2023/b.jpg"},
			want:  "photos.mu5",
		},
		{
			name:  "shared first component",
			paths: []string{"/data/photos/a.jpg", "/data/photos/sub/b.jpg"},
			want:  "photos.mu5",
		},
		{
			name:  "mixed components",
			paths: []string{"/data/photos/a.jpg", "/data/music/b.mp3"},
			want:  "data.mu5",
		},
		{
			name:  "root ancestor",
			paths: []string{"/a.txt", "/b.txt"},
			want:  "Checksum.mu5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if filepath.Separator != '/' {
				t.Skip("unix paths")
			}
			cat := New(types.ModeVerify)
			for _, p := range tt.paths {
				cat.AddRecord(p, 0, md5abcd, "")
			}
			assert.Equal(t, tt.want, cat.SuggestedManifestName(".mu5"))
		})
	}
}

func TestSuggestedManifestName_WalkedDirectory(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "holiday")
	a := writeFile(t, filepath.Join(root, "a.jpg"), "a")
	b := writeFile(t, filepath.Join(root, "sub", "b.jpg"), "b")

	cat := New(types.ModeGenerate)
	cat.AddPath(root)
	cat.AddPath(a)
	cat.AddPath(b)

	assert.Equal(t, dir, cat.CommonAncestor())
	assert.Equal(t, "holiday.mu5", cat.SuggestedManifestName("mu5"))
}

func TestComputeOrVerify_Generate(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	cat := New(types.ModeGenerate)
	cat.AddPath(a)

	var progressed int64
	out := cat.ComputeOrVerify(0, digest.MD5, func(n int64) { progressed += n })

	assert.Equal(t, Ok, out)
	rec := cat.At(0)
	assert.Equal(t, Verified, rec.State)
	assert.Equal(t, md5abcd, rec.Computed)
	assert.Empty(t, rec.Err)
	assert.Equal(t, int64(4), progressed)
	assert.Equal(t, md5abcd, rec.Result())
}

func TestComputeOrVerify_VerifyMatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	cat := New(types.ModeVerify)
	cat.AddRecord(a, 4, strings.ToUpper(md5abcd), "")

	// The configured algorithm is ignored in favour of the digest length.
	out := cat.ComputeOrVerify(0, digest.SHA3_256, nil)

	assert.Equal(t, Ok, out)
	assert.Equal(t, Verified, cat.At(0).State)
}

func TestComputeOrVerify_VerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abce")

	cat := New(types.ModeVerify)
	cat.AddRecord(a, 4, md5abcd, "")

	out := cat.ComputeOrVerify(0, digest.MD5, nil)

	assert.Equal(t, Corrupted, out)
	rec := cat.At(0)
	assert.Equal(t, Failed, rec.State)
	assert.Contains(t, rec.Err, "corrupted")
	assert.Contains(t, rec.Err, md5abcd)
}

func TestComputeOrVerify_SizeMismatchSkipsHashing(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	hasher := &countingHasher{}
	cat := New(types.ModeVerify, WithHasher(hasher))
	cat.AddRecord(a, 5, md5abcd, "")

	out := cat.ComputeOrVerify(0, digest.MD5, nil)

	assert.Equal(t, Corrupted, out)
	assert.Equal(t, Failed, cat.At(0).State)
	assert.Contains(t, cat.At(0).Err, CauseSizeMismatch)
	assert.Equal(t, int32(0), hasher.calls.Load())
}

func TestComputeOrVerify_Missing(t *testing.T) {
	dir := t.TempDir()

	cat := New(types.ModeVerify)
	cat.AddRecord(filepath.Join(dir, "gone.txt"), 4, md5abcd, "")

	out := cat.ComputeOrVerify(0, digest.MD5, nil)

	assert.Equal(t, Missing, out)
	assert.Equal(t, Failed, cat.At(0).State)
	assert.Contains(t, cat.At(0).Err, "missing")
}

func TestComputeOrVerify_PresetFailureShortCircuits(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	hasher := &countingHasher{}
	cat := New(types.ModeVerify, WithHasher(hasher))
	cat.AddRecord(a, 4, "", "permission denied")

	out := cat.ComputeOrVerify(0, digest.MD5, nil)

	assert.Equal(t, Corrupted, out)
	assert.Equal(t, "permission denied", cat.At(0).Err)
	assert.Equal(t, int32(0), hasher.calls.Load())
}

func TestFailuresAndLookup(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.txt"), "abcd")
	b := filepath.Join(dir, "b.txt")

	cat := New(types.ModeVerify)
	cat.AddRecord(b, 0, md5abcd, "")
	cat.AddRecord(a, 4, md5abcd, "")

	for i := 0; i < cat.Len(); i++ {
		cat.ComputeOrVerify(i, digest.MD5, nil)
	}

	failed := cat.Failures()
	require.Len(t, failed, 1)
	assert.Equal(t, b, failed[0].Path)

	rec, ok := cat.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, Verified, rec.State)

	_, ok = cat.Lookup(filepath.Join(dir, "nope"))
	assert.False(t, ok)
}

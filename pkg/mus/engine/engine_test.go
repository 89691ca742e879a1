package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/filter"
	"github.com/jamesainslie/mus/pkg/mus/manifest"
	"github.com/jamesainslie/mus/pkg/mus/types"
)

const md5abcd = "e2fc714c4727ee9395f324cd2e7f331f"

type countingHasher struct {
	calls atomic.Int32
}

func (h *countingHasher) Sum(r io.Reader, alg digest.Algorithm, onProgress func(n int64)) (string, error) {
	h.calls.Add(1)
	return digest.Hasher{}.Sum(r, alg, onProgress)
}

// recorder is a Listener that keeps every notification.
type recorder struct {
	mu          sync.Mutex
	building    int
	calculating []types.Status
	finished    []types.Status
	errs        []error
}

func (r *recorder) OnBuilding() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.building++
}

func (r *recorder) OnCalculating(s types.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculating = append(r.calculating, s)
}

func (r *recorder) OnFinished(s types.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// generate runs a generation over paths and writes the manifest to out.
func generate(t *testing.T, out string, paths ...string) *catalog.Catalog {
	t.Helper()
	e := ForFiles(paths)
	require.NoError(t, e.Run(context.Background(), 2))
	require.NoError(t, manifest.WriteFile(out, e.Catalog(), manifest.Encoder{}))
	return e.Catalog()
}

func TestGenerate_ConcreteTree(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "b.txt"), "")
	writeFile(t, filepath.Join(root, "a.txt"), "abcd")

	rec := &recorder{}
	e := ForFiles([]string{root}, WithListener(rec))
	require.NoError(t, e.Run(context.Background(), 1))

	cat := e.Catalog()
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, "root/a.txt", cat.RelPath(0))
	assert.Equal(t, "root/b.txt", cat.RelPath(1))
	assert.Equal(t, md5abcd, cat.At(0).Computed)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", cat.At(1).Computed)

	final := e.Status()
	assert.Equal(t, types.StateFinished, final.State)
	assert.Equal(t, int64(4), final.TotalBytes)
	assert.Equal(t, 2, final.DoneOK)
	assert.Equal(t, 0, final.DoneKO)
	assert.Equal(t, 10000, final.PercentDoneBp)
	assert.Equal(t, int64(0), final.SecondsRemaining)

	assert.Equal(t, 1, rec.building)
	require.Len(t, rec.calculating, 1)
	assert.Equal(t, types.StateCalculating, rec.calculating[0].State)
	assert.Equal(t, 2, rec.calculating[0].TotalFiles)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, final.DoneOK, rec.finished[0].DoneOK)
	assert.Empty(t, rec.errs)
	assert.Equal(t, "root.mu5", cat.SuggestedManifestName(manifest.DefaultExtension))
}

func TestGenerate_WorkerCounts(t *testing.T) {
	for _, n := range []int{0, 1, 7, 40} {
		for _, k := range []int{-1, 1, 3, 16} {
			t.Run(fmt.Sprintf("files=%d/workers=%d", n, k), func(t *testing.T) {
				dir := t.TempDir()
				for i := 0; i < n; i++ {
					writeFile(t, filepath.Join(dir, fmt.Sprintf("f%03d.bin", i)), strings.Repeat("x", 128))
				}
				// An extra file keeps the catalog non-empty when n is zero.
				writeFile(t, filepath.Join(dir, "zz.bin"), strings.Repeat("x", 128))

				e := ForFiles([]string{dir})
				require.NoError(t, e.Run(context.Background(), k))

				cat := e.Catalog()
				require.Equal(t, n+1, cat.Len())
				for _, r := range cat.Records() {
					assert.Equal(t, catalog.Verified, r.State)
				}
				s := e.Status()
				assert.Equal(t, 10000, s.PercentDoneBp)
				assert.Equal(t, n+1, s.DoneOK)
				assert.Equal(t, int64((n+1)*128), s.ProcessedBytes)
			})
		}
	}
}

func TestRun_RejectsReuse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	rec := &recorder{}
	e := ForFiles([]string{dir}, WithListener(rec))
	require.NoError(t, e.Run(context.Background(), 1))

	err := e.Run(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrAlreadyUsed)
	assert.Len(t, rec.finished, 1)
}

func TestRun_ConcurrentCallersOnlyOneRuns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	e := ForFiles([]string{dir})

	var wg sync.WaitGroup
	var used atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(e.Run(context.Background(), 1), ErrAlreadyUsed) {
				used.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(7), used.Load())
}

func TestRun_NoFiles(t *testing.T) {
	rec := &recorder{}
	e := ForFiles([]string{t.TempDir()}, WithListener(rec))

	err := e.Run(context.Background(), 1)

	assert.ErrorIs(t, err, ErrNoFiles)
	require.Len(t, rec.errs, 1)
	assert.Empty(t, rec.calculating)
	assert.Equal(t, types.StateFinished, e.State())
	assert.Equal(t, types.StateFinished, e.Status().State)
}

func TestRun_MissingInput(t *testing.T) {
	e := ForFiles([]string{filepath.Join(t.TempDir(), "nope")})
	err := e.Run(context.Background(), 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_UnsupportedAlgorithm(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	e := ForFiles([]string{dir}, WithAlgorithm(digest.Algorithm(9)))
	err := e.Run(context.Background(), 1)
	assert.ErrorIs(t, err, digest.ErrUnsupportedAlgorithm)
}

func TestVerify_IgnoresGenerationAlgorithm(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "a.txt"), "abcd")
	generate(t, filepath.Join(dir, "root.mu5"), root)

	e := ForManifests([]string{dir}, WithAlgorithm(digest.Algorithm(9)))
	require.NoError(t, e.Run(context.Background(), 1))

	assert.Equal(t, 1, e.Status().DoneOK)
}

func TestGenerate_Exclusions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "k")
	writeFile(t, filepath.Join(dir, "skip.tmp"), "s")
	writeFile(t, filepath.Join(dir, "cache", "inner.txt"), "i")

	f, err := filter.New(filter.WithExclude("*.tmp", "cache"))
	require.NoError(t, err)

	e := ForFiles([]string{dir}, WithFilter(f))
	require.NoError(t, e.Run(context.Background(), 2))

	cat := e.Catalog()
	require.Equal(t, 1, cat.Len())
	assert.Equal(t, filepath.Join(dir, "keep.txt"), cat.At(0).Path)
}

func TestGenerate_OverlappingInputsCountedOnce(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a, "abcd")

	e := ForFiles([]string{dir, a})
	require.NoError(t, e.Run(context.Background(), 2))

	assert.Equal(t, 1, e.Catalog().Len())
	assert.Equal(t, int64(4), e.Status().TotalBytes)
}

func TestVerify_AllGood(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "a.txt"), "abcd")
	writeFile(t, filepath.Join(root, "b.txt"), "")
	generate(t, filepath.Join(dir, "root.mu5"), root)

	e := ForManifests([]string{dir})
	require.NoError(t, e.Run(context.Background(), 2))

	s := e.Status()
	assert.Equal(t, types.ModeVerify, e.Mode())
	assert.Equal(t, 2, s.DoneOK)
	assert.Equal(t, 0, s.DoneKO)
	assert.NoError(t, e.ManifestErr())
}

func TestVerify_WrongSizeNeverHashed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")
	writeFile(t, filepath.Join(dir, "b.txt"), "bbbb")

	data := md5abcd + "\t4\ta.txt\r\n" + md5abcd + "\t9\tb.txt\r\n"
	mf := filepath.Join(dir, "x.mu5")
	require.NoError(t, os.WriteFile(mf, []byte(data), 0o644))

	hasher := &countingHasher{}
	e := ForManifests([]string{mf}, WithHasher(hasher))
	require.NoError(t, e.Run(context.Background(), 2))

	failed := e.Catalog().Failures()
	require.Len(t, failed, 1)
	assert.Equal(t, filepath.Join(dir, "b.txt"), failed[0].Path)
	assert.Contains(t, failed[0].Err, catalog.CauseSizeMismatch)
	assert.Equal(t, int32(1), hasher.calls.Load())

	s := e.Status()
	assert.Equal(t, 1, s.DoneOK)
	assert.Equal(t, 1, s.DoneKO)
	assert.Equal(t, 0, s.DoneMissing)
}

func TestVerify_DeletedFileIsMissing(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	writeFile(t, filepath.Join(root, "a.txt"), "abcd")
	writeFile(t, filepath.Join(root, "gone.txt"), "bye")
	mf := filepath.Join(dir, "root.mu5")
	generate(t, mf, root)
	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))

	e := ForManifests([]string{mf})
	require.NoError(t, e.Run(context.Background(), 1))

	rec, ok := e.Catalog().Lookup(filepath.Join(root, "gone.txt"))
	require.True(t, ok)
	assert.Equal(t, catalog.Failed, rec.State)
	assert.Contains(t, rec.Err, "missing")

	s := e.Status()
	assert.Equal(t, 1, s.DoneMissing)
	assert.Equal(t, 1, s.DoneKO)
	assert.Equal(t, 1, s.DoneOK)
}

func TestVerify_OneCorruptedManifestOfTwo(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good")
	bad := filepath.Join(dir, "bad")
	writeFile(t, filepath.Join(good, "a.txt"), "abcd")
	writeFile(t, filepath.Join(bad, "b.txt"), "bbbb")

	goodMf := filepath.Join(dir, "good.mu5")
	badMf := filepath.Join(dir, "bad.mu5")
	generate(t, goodMf, good)
	generate(t, badMf, bad)

	// Corrupt the trailing self-checksum of one manifest.
	data, err := os.ReadFile(badMf)
	require.NoError(t, err)
	trailer := len(data) - len(manifest.TrailerSuffix) - 1
	if data[trailer] == '0' {
		data[trailer] = '1'
	} else {
		data[trailer] = '0'
	}
	require.NoError(t, os.WriteFile(badMf, data, 0o644))

	rec := &recorder{}
	e := ForManifests([]string{goodMf, badMf}, WithListener(rec))
	require.NoError(t, e.Run(context.Background(), 2))

	require.Len(t, rec.errs, 1)
	var ie *manifest.IntegrityError
	require.True(t, errors.As(rec.errs[0], &ie))
	assert.Equal(t, []string{badMf}, ie.Paths)
	assert.Equal(t, rec.errs[0], e.ManifestErr())

	// Entries of both manifests are still processed.
	assert.Equal(t, 2, e.Catalog().Len())
	assert.Equal(t, 2, e.Status().DoneOK)
	require.Len(t, rec.finished, 1)
}

func TestVerify_OnlyCorruptedManifestsFinishWithoutWork(t *testing.T) {
	dir := t.TempDir()
	mf := filepath.Join(dir, "empty.mu5")
	// A manifest with no entries and a wrong trailer.
	require.NoError(t, os.WriteFile(mf, []byte("# header\r\n"+md5abcd+manifest.TrailerSuffix), 0o644))

	rec := &recorder{}
	e := ForManifests([]string{mf}, WithListener(rec))
	err := e.Run(context.Background(), 1)

	var ie *manifest.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.calculating)
	assert.Equal(t, types.StateFinished, e.State())
}

func TestVerify_DuplicateAcrossManifestsKeptOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")
	line := md5abcd + "\t4\ta.txt\r\n"
	m1 := filepath.Join(dir, "one.mu5")
	m2 := filepath.Join(dir, "two.mu5")
	require.NoError(t, os.WriteFile(m1, []byte(line), 0o644))
	require.NoError(t, os.WriteFile(m2, []byte(line), 0o644))

	e := ForManifests([]string{m1, m2})
	require.NoError(t, e.Run(context.Background(), 1))

	assert.Equal(t, 1, e.Catalog().Len())
	assert.Equal(t, int64(4), e.Status().TotalBytes)
}

func TestRun_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	e := ForFiles([]string{dir}, WithListener(rec))
	err := e.Run(ctx, 1)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, rec.errs, 1)
	assert.Empty(t, rec.finished)
}

// cancellingHasher cancels the run after hashing its first file.
type cancellingHasher struct {
	cancel context.CancelFunc
}

func (h cancellingHasher) Sum(r io.Reader, alg digest.Algorithm, onProgress func(int64)) (string, error) {
	defer h.cancel()
	return digest.Hasher{}.Sum(r, alg, onProgress)
}

func TestRun_CancelledMidRunKeepsPartialProgress(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeFile(t, filepath.Join(dir, name), "abcd")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := ForFiles([]string{dir}, WithHasher(cancellingHasher{cancel: cancel}))
	err := e.Run(ctx, 1)

	require.ErrorIs(t, err, context.Canceled)
	s := e.Status()
	assert.Equal(t, types.StateFinished, s.State)
	assert.Positive(t, s.ProcessedBytes)
	assert.Less(t, s.ProcessedBytes, s.TotalBytes)
	assert.Equal(t, int(s.ProcessedBytes*10000/s.TotalBytes), s.PercentDoneBp)
	assert.Less(t, s.PercentDoneBp, 10000)
}

type panickingHasher struct{}

func (panickingHasher) Sum(io.Reader, digest.Algorithm, func(int64)) (string, error) {
	panic("boom")
}

func TestRun_WorkerPanicIsAFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abcd")

	e := ForFiles([]string{dir}, WithHasher(panickingHasher{}))
	require.NoError(t, e.Run(context.Background(), 1))

	rec := e.Catalog().At(0)
	assert.Equal(t, catalog.Failed, rec.State)
	assert.Contains(t, rec.Err, "boom")
	assert.Equal(t, 1, e.Status().DoneKO)
}

func TestDiscoverManifests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mu5"), "")
	writeFile(t, filepath.Join(dir, "sub", "b.mu5"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "")
	single := filepath.Join(t.TempDir(), "z.mu5")
	writeFile(t, single, "")

	got, err := DiscoverManifests([]string{dir, single, filepath.Join(dir, "a.mu5")}, "mu5")
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "a.mu5"),
		filepath.Join(dir, "sub", "b.mu5"),
		single,
	}
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 3)

	_, err = DiscoverManifests([]string{filepath.Join(dir, "missing")}, "mu5")
	assert.Error(t, err)
}

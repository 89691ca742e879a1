package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// DiscoverManifests expands paths into the sorted, de-duplicated list of
// manifest files they name. Files are kept when they carry the extension
// ext; directories are searched recursively.
func DiscoverManifests(paths []string, ext string) ([]string, error) {
	suffix := "." + strings.TrimPrefix(ext, ".")

	var (
		mu    sync.Mutex
		found []string
	)

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		if !info.IsDir() {
			if strings.HasSuffix(abs, suffix) {
				found = append(found, abs)
			}
			continue
		}

		conf := fastwalk.Config{Follow: false}
		err = fastwalk.Walk(&conf, abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.Type().IsRegular() && strings.HasSuffix(path, suffix) {
				mu.Lock()
				found = append(found, path)
				mu.Unlock()
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", abs, err)
		}
	}

	slices.Sort(found)
	return slices.Compact(found), nil
}

package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ExpandFiles expands glob patterns into a sorted list of distinct paths.
// Directories are skipped. A pattern that matches nothing is kept verbatim,
// so a missing file is reported when it is opened rather than ignored.
func ExpandFiles(patterns []string) ([]string, error) {
	fileset := make(map[string]bool)

	for _, pattern := range patterns {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}

		if len(paths) == 0 {
			paths = []string{pattern}
		}

		for _, path := range paths {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				continue
			}
			fileset[filepath.Clean(path)] = true
		}
	}

	files := make([]string, 0, len(fileset))
	for path := range fileset {
		files = append(files, path)
	}
	sort.Strings(files)

	return files, nil
}

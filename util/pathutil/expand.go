// Package pathutil resolves user-supplied paths from configuration.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Expand expands the home directory (~) and environment variables in a path.
// A relative result is joined to baseDir when baseDir is set. An empty path
// stays empty.
func Expand(path, baseDir string) (string, error) {
	if path == "" {
		return "", nil
	}

	// 1. Expand home directory character '~'.
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	// 2. Expand environment variables.
	path = os.ExpandEnv(path)

	// 3. Anchor relative paths at the directory of the file that named them.
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return filepath.Clean(path), nil
}

// ExpandAll expands each non-empty path in place.
func ExpandAll(baseDir string, paths ...*string) error {
	for _, p := range paths {
		expanded, err := Expand(*p, baseDir)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover expands glob patterns into deduplicated absolute paths of regular
// files, in pattern order. Stdin and object storage locations pass through
// untouched.
// A pattern without glob characters must name an existing file.
func Discover(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	for _, pattern := range patterns {
		if pattern == Stdin || IsRemote(pattern) {
			add(pattern)
			continue
		}

		abs, err := filepath.Abs(pattern)
		if err != nil {
			return nil, err
		}

		if !HasMeta(pattern) {
			info, err := os.Stat(abs)
			if err != nil {
				return nil, err
			}
			if !info.Mode().IsRegular() {
				return nil, fmt.Errorf("%s: not a regular file", pattern)
			}
			add(abs)
			continue
		}

		matches, err := doublestar.FilepathGlob(abs)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			add(m)
		}
	}

	return result, nil
}

// HasMeta reports whether pattern contains glob metacharacters.
func HasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// WatchDirs returns the directories to watch for patterns: the static
// prefix of each (the part before the first glob character) and, for
// patterns that cross directories with "**", every directory below that
// prefix. Directories that cannot be read are skipped.
func WatchDirs(patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, pattern := range patterns {
		abs, err := filepath.Abs(pattern)
		if err != nil {
			continue
		}
		dir := staticPrefix(abs)
		add(dir)
		if !strings.Contains(abs, "**") {
			continue
		}
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				add(path)
			}
			return nil
		})
	}
	return dirs
}

// Recursive reports whether dir is at or below the static prefix of a
// pattern that uses "**", so that a directory created there must be
// watched too.
func Recursive(dir string, patterns []string) bool {
	for _, pattern := range patterns {
		abs, err := filepath.Abs(pattern)
		if err != nil || !strings.Contains(abs, "**") {
			continue
		}
		rel, err := filepath.Rel(staticPrefix(abs), dir)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func staticPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?[{"); i >= 0 {
		return filepath.Dir(pattern[:i])
	}
	return filepath.Dir(pattern)
}

// MatchesAny reports whether path matches any of the patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		abs, err := filepath.Abs(pattern)
		if err != nil {
			continue
		}
		if ok, _ := doublestar.PathMatch(abs, path); ok {
			return true
		}
	}
	return false
}

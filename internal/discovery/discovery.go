// Package discovery locates the Solidity source files of an audit target.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SolidityExt is the extension of Solidity source files.
const SolidityExt = ".sol"

// DefaultExcludes are directory names skipped while walking. They hold
// installed dependencies or build output rather than project sources.
var DefaultExcludes = []string{
	"node_modules",
	"lib",
	".git",
	"out",
	"cache",
	"artifacts",
	"build",
	"typechain",
	"typechain-types",
	"coverage",
	"broadcast",
	".deps",
}

// LibraryDirs are the excluded directories that IncludeLibs re-admits.
var LibraryDirs = []string{"node_modules", "lib", ".deps"}

// ProjectDirs are walked when the target is neither a .sol file nor a
// directory.
var ProjectDirs = []string{"src", "contracts"}

// ErrTargetNotFound is returned by Find when the target path does not exist.
var ErrTargetNotFound = errors.New("target does not exist")

// Options controls how Find walks a target.
type Options struct {
	// Recursive walks the whole tree below a directory target. Without it
	// only the directory's direct children are considered.
	Recursive bool

	// IncludeLibs stops skipping dependency folders.
	IncludeLibs bool

	// ExtraExcludes are additional directory names, or slash-separated path
	// prefixes relative to the walk root when they contain a slash.
	ExtraExcludes []string

	// WorkDir is the base for the project fallback. Empty means the process
	// working directory.
	WorkDir string
}

// Find returns the sorted, de-duplicated list of .sol files for path.
//
//   - A .sol file yields itself.
//   - A directory yields its .sol files, walking subdirectories when
//     Recursive is set.
//   - Any other existing path (a README, a foundry.toml) falls back to the
//     src/ and contracts/ folders of the working directory, then to its
//     top-level .sol files.
//   - A path that does not exist is an error wrapping ErrTargetNotFound.
//
// An empty result is not an error.
func Find(path string, opts Options) ([]string, error) {
	m := newMatcher(opts)

	info, err := os.Stat(path)
	switch {
	case err == nil && !info.IsDir():
		if isSolidity(path) {
			return []string{path}, nil
		}
		return fallback(opts, m)
	case err == nil:
		return collect(path, opts.Recursive, m)
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, path)
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

func fallback(opts Options, m matcher) ([]string, error) {
	base := opts.WorkDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	var files []string
	for _, dir := range ProjectDirs {
		root := filepath.Join(base, dir)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		found, err := collect(root, true, m)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(files) > 0 {
		return normalize(files), nil
	}
	return collect(base, false, m)
}

func collect(root string, recursive bool, m matcher) ([]string, error) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
		}
		files := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !isSolidity(e.Name()) || m.skipPath(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(root, e.Name()))
		}
		return normalize(files), nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the root itself is not.
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (m.skipDir(d.Name()) || m.skipPath(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if isSolidity(d.Name()) && !m.skipPath(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return normalize(files), nil
}

func isSolidity(name string) bool {
	return strings.HasSuffix(name, SolidityExt)
}

func normalize(files []string) []string {
	if files == nil {
		return []string{}
	}
	slices.Sort(files)
	return slices.Compact(files)
}

// matcher decides which directories and files are excluded.
type matcher struct {
	names    map[string]bool
	prefixes []string
}

func newMatcher(opts Options) matcher {
	m := matcher{names: make(map[string]bool, len(DefaultExcludes)+len(opts.ExtraExcludes))}
	for _, name := range DefaultExcludes {
		if opts.IncludeLibs && slices.Contains(LibraryDirs, name) {
			continue
		}
		m.names[name] = true
	}
	for _, ex := range opts.ExtraExcludes {
		ex = strings.TrimSpace(filepath.ToSlash(ex))
		ex = strings.TrimPrefix(ex, "./")
		if ex == "" {
			continue
		}
		if strings.Contains(strings.TrimSuffix(ex, "/"), "/") {
			m.prefixes = append(m.prefixes, strings.TrimSuffix(ex, "/"))
			continue
		}
		m.names[strings.TrimSuffix(ex, "/")] = true
	}
	return m
}

func (m matcher) skipDir(name string) bool {
	return m.names[name]
}

func (m matcher) skipPath(rel string) bool {
	for _, p := range m.prefixes {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

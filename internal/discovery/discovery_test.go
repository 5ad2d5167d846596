package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// writeTree creates the given files (slash-separated, relative to root).
func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(p, []byte("// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\n"), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", f, err)
		}
	}
}

// relAll converts found paths back to slash-separated paths relative to root.
func relAll(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			t.Fatalf("rel: %v", err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

// TestFind tests discovery over a typical foundry/hardhat layout.
func TestFind(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root,
		"Root.sol",
		"README.md",
		"src/Token.sol",
		"src/utils/Math.sol",
		"contracts/mocks/Mock.sol",
		"lib/forge-std/src/Test.sol",
		"node_modules/@openzeppelin/contracts/ERC20.sol",
		".deps/remix/Lib.sol",
		"out/Token.sol/Token.sol",
		"artifacts/build-info/X.sol",
		"cache/Y.sol",
		"typechain-types/Z.sol",
	)

	testCases := []struct {
		name     string
		opts     Options
		expected []string
	}{
		{
			name: "recursive skips dependencies and artifacts",
			opts: Options{Recursive: true},
			expected: []string{
				"Root.sol",
				"contracts/mocks/Mock.sol",
				"src/Token.sol",
				"src/utils/Math.sol",
			},
		},
		{
			name:     "non-recursive takes direct children only",
			opts:     Options{Recursive: false},
			expected: []string{"Root.sol"},
		},
		{
			name: "include libs re-admits library folders only",
			opts: Options{Recursive: true, IncludeLibs: true},
			expected: []string{
				".deps/remix/Lib.sol",
				"Root.sol",
				"contracts/mocks/Mock.sol",
				"lib/forge-std/src/Test.sol",
				"node_modules/@openzeppelin/contracts/ERC20.sol",
				"src/Token.sol",
				"src/utils/Math.sol",
			},
		},
		{
			name: "extra excludes by name and by prefix",
			opts: Options{Recursive: true, ExtraExcludes: []string{"mocks", "./src/utils/"}},
			expected: []string{
				"Root.sol",
				"src/Token.sol",
			},
		},
		{
			name: "prefix exclude of a single file",
			opts: Options{Recursive: true, ExtraExcludes: []string{"src/Token.sol"}},
			expected: []string{
				"Root.sol",
				"contracts/mocks/Mock.sol",
				"src/utils/Math.sol",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			files, err := Find(root, tc.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := relAll(t, root, files)
			if !slices.Equal(got, tc.expected) {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestFindSingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, "A.sol", "notes.txt")

	t.Run("sol file yields itself", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(root, "A.sol")
		files, err := Find(path, Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 || files[0] != path {
			t.Errorf("got %v", files)
		}
	})

	t.Run("missing path is an error", func(t *testing.T) {
		t.Parallel()
		work := t.TempDir()
		writeTree(t, work, "src/Other.sol")

		files, err := Find(filepath.Join(work, "contrcts"), Options{Recursive: true, WorkDir: work})
		if !errors.Is(err, ErrTargetNotFound) {
			t.Fatalf("expected ErrTargetNotFound, got %v", err)
		}
		if files != nil {
			t.Errorf("expected no files for a missing path, got %v", files)
		}
	})
}

// TestFindFallback tests the project fallback for a target that is neither
// a .sol file nor a directory.
func TestFindFallback(t *testing.T) {
	t.Parallel()

	t.Run("walks src and contracts", func(t *testing.T) {
		t.Parallel()
		work := t.TempDir()
		writeTree(t, work, "Top.sol", "src/A.sol", "contracts/B.sol", "contracts/node_modules/C.sol", "other/D.sol", "notes.txt")

		files, err := Find(filepath.Join(work, "notes.txt"), Options{WorkDir: work})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := relAll(t, work, files)
		expected := []string{"contracts/B.sol", "src/A.sol"}
		if !slices.Equal(got, expected) {
			t.Errorf("got %v, expected %v", got, expected)
		}
	})

	t.Run("falls back to top-level files", func(t *testing.T) {
		t.Parallel()
		work := t.TempDir()
		writeTree(t, work, "Top.sol", "nested/E.sol", "foundry.toml")

		files, err := Find(filepath.Join(work, "foundry.toml"), Options{WorkDir: work, Recursive: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := relAll(t, work, files)
		if !slices.Equal(got, []string{"Top.sol"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("empty project yields nothing", func(t *testing.T) {
		t.Parallel()
		work := t.TempDir()
		writeTree(t, work, "README.md")
		files, err := Find(filepath.Join(work, "README.md"), Options{WorkDir: work})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 0 {
			t.Errorf("expected no files, got %v", files)
		}
	})
}

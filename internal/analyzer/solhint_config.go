package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// SolhintConfigFile is the config file name solhint looks for.
const SolhintConfigFile = ".solhint.json"

// projectMarkers identify the root of a Solidity project.
var projectMarkers = []string{
	".git",
	"package.json",
	"foundry.toml",
	"hardhat.config.js",
	"hardhat.config.ts",
}

// DefaultSolhintConfig returns the config written when a project has none.
func DefaultSolhintConfig() map[string]any {
	return map[string]any{
		"extends": "solhint:recommended",
		"rules": map[string]any{
			"compiler-version": []any{"error", "^0.8.0"},
			"func-visibility":  []any{"warn", map[string]any{"ignoreConstructors": true}},
			"max-line-length":  []any{"warn", 120},
		},
	}
}

// SolhintConfig returns the default config with overrides merged into its rules.
func SolhintConfig(overrides map[string]any) map[string]any {
	cfg := DefaultSolhintConfig()
	rules, _ := cfg["rules"].(map[string]any)
	maps.Copy(rules, overrides)
	return cfg
}

// MarshalSolhintConfig renders a config the way it is written to disk.
func MarshalSolhintConfig(cfg map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode solhint config: %w", err)
	}
	return append(data, '\n'), nil
}

// FindProjectRoot walks up from path to the first directory holding a
// project marker. It returns the starting directory when none is found.
func FindProjectRoot(path string) string {
	start := startDir(path)
	for dir := start; ; {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// findSolhintConfig walks up from path looking for an existing config.
func findSolhintConfig(path string) (string, bool) {
	for dir := startDir(path); ; {
		candidate := filepath.Join(dir, SolhintConfigFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ensureSolhintConfig returns the config solhint should use for file.
// An existing config wins. Otherwise, when create is set, the default config
// is written at the project root, falling back to the file's directory.
// An empty result means solhint should resolve its config itself.
func ensureSolhintConfig(file string, create bool, overrides map[string]any) (string, error) {
	if found, ok := findSolhintConfig(file); ok {
		return found, nil
	}
	if !create {
		return "", nil
	}

	data, err := MarshalSolhintConfig(SolhintConfig(overrides))
	if err != nil {
		return "", err
	}

	var errs []error
	for _, dir := range []string{FindProjectRoot(file), startDir(file)} {
		target := filepath.Join(dir, SolhintConfigFile)
		if err := writeFileAtomic(target, data); err != nil {
			errs = append(errs, err)
			continue
		}
		return target, nil
	}
	return "", errors.Join(errs...)
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so concurrent writers never leave a partial file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

func startDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return filepath.Dir(abs)
	}
	if filepath.Ext(abs) != "" {
		return filepath.Dir(abs)
	}
	return abs
}

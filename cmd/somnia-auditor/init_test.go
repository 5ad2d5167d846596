package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
	"github.com/nao1215/somnia-auditor/internal/config"
)

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestNewInitCmd tests the init command creation.
func TestNewInitCmd(t *testing.T) {
	t.Parallel()

	cmd := NewInitCmd()
	if cmd.Use != "init" {
		t.Errorf("expected use 'init', got %q", cmd.Use)
	}

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"output", "o", configFileName},
		{"force", "f", "false"},
		{"solhint", "", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestRunInitCmd tests the init command execution.
func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), configFileName)
		out, err := runInit(t, "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Created configuration file: "+path) {
			t.Errorf("unexpected output: %s", out)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(path), analyzer.SolhintConfigFile)); !os.IsNotExist(err) {
			t.Error("solhint config should not be written without --solhint")
		}
	})

	t.Run("template loads with defaults", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), configFileName)
		if _, err := runInit(t, "-o", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f, err := config.LoadConfigFile(path)
		if err != nil {
			t.Fatalf("template is not valid YAML: %v", err)
		}
		if f.Recursive == nil || !*f.Recursive {
			t.Error("expected recursive: true")
		}
		if f.Timeout != 5*time.Minute {
			t.Errorf("expected timeout 5m, got %v", f.Timeout)
		}
		if f.Docker.Image != config.DefaultDockerImage {
			t.Errorf("expected docker image %q, got %q", config.DefaultDockerImage, f.Docker.Image)
		}
		if f.AI.Model != config.DefaultAIModel {
			t.Errorf("expected ai model %q, got %q", config.DefaultAIModel, f.AI.Model)
		}
		if len(f.Ignore) != 0 {
			t.Errorf("expected no ignore rules, got %v", f.Ignore)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), configFileName)
		if err := os.WriteFile(path, []byte("jobs: 4\n"), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := runInit(t, "-o", path)
		if err == nil || !strings.Contains(err.Error(), "file already exists") {
			t.Fatalf("expected already exists error, got %v", err)
		}
		data, err := os.ReadFile(path) //nolint:gosec // test file
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "jobs: 4\n" {
			t.Error("existing file was modified")
		}
	})

	t.Run("force overwrites", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), configFileName)
		if err := os.WriteFile(path, []byte("jobs: 4\n"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := runInit(t, "-o", path, "-f"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path) //nolint:gosec // test file
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "somnia-auditor project configuration") {
			t.Error("file was not overwritten with the template")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "configs", "nested", "audit.yaml")
		if _, err := runInit(t, "-o", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("config file not created: %v", err)
		}
	})

	t.Run("writes solhint config", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, configFileName)
		out, err := runInit(t, "-o", path, "--solhint")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		solhintPath := filepath.Join(dir, analyzer.SolhintConfigFile)
		if !strings.Contains(out, "Created configuration file: "+solhintPath) {
			t.Errorf("unexpected output: %s", out)
		}
		data, err := os.ReadFile(solhintPath) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("solhint config not created: %v", err)
		}
		var cfg map[string]any
		if err := json.Unmarshal(data, &cfg); err != nil {
			t.Fatalf("invalid solhint config: %v", err)
		}
		if cfg["extends"] != "solhint:recommended" {
			t.Errorf("unexpected extends: %v", cfg["extends"])
		}
	})

	t.Run("solhint conflict writes nothing", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, configFileName)
		solhintPath := filepath.Join(dir, analyzer.SolhintConfigFile)
		if err := os.WriteFile(solhintPath, []byte("{}\n"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := runInit(t, "-o", path, "--solhint"); err == nil {
			t.Fatal("expected error")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("config file should not be written when another file conflicts")
		}
	})
}

package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
)

// fakeEngine records the container it was asked to run and replays output.
type fakeEngine struct {
	cfg       *container.Config
	host      *container.HostConfig
	stdout    string
	stderr    string
	exitCode  int64
	startErr  error
	hasImage  bool
	removed   []string
	createErr error
}

func (f *fakeEngine) Create(_ context.Context, cfg *container.Config, host *container.HostConfig) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.cfg = cfg
	f.host = host
	return "c1", nil
}

func (f *fakeEngine) Start(context.Context, string) error { return f.startErr }

func (f *fakeEngine) Wait(context.Context, string) (int64, error) { return f.exitCode, nil }

func (f *fakeEngine) Logs(context.Context, string) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout)); err != nil {
			return nil, err
		}
	}
	if f.stderr != "" {
		if _, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr)); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeEngine) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeEngine) HasImage(context.Context, string) (bool, error) { return f.hasImage, nil }

func (f *fakeEngine) Close() error { return nil }

// TestRunner_TranslatesPaths tests host/container path rewriting and sandbox settings.
func TestRunner_TranslatesPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "contracts", "Vault.sol")
	cfgFile := filepath.Join(root, ".solhint.json")

	eng := &fakeEngine{
		stdout:   `[{"filePath":"/src/contracts/Vault.sol","line":1}]`,
		stderr:   "warning in /src/contracts/Vault.sol",
		exitCode: 1,
	}
	r, err := newRunner(eng, "toolbox:test", root)
	if err != nil {
		t.Fatalf("newRunner: %v", err)
	}

	out, err := r.Run(t.Context(), analyzer.Command{
		Name: "solhint",
		Args: []string{file, "--formatter", "json", "--config", cfgFile},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("arguments are container paths", func(t *testing.T) {
		want := []string{"/src/contracts/Vault.sol", "--formatter", "json", "--config", "/src/.solhint.json"}
		if !slices.Equal([]string(eng.cfg.Cmd), want) {
			t.Errorf("got %v, expected %v", eng.cfg.Cmd, want)
		}
		if !slices.Equal([]string(eng.cfg.Entrypoint), []string{"solhint"}) {
			t.Errorf("unexpected entrypoint %v", eng.cfg.Entrypoint)
		}
		if eng.cfg.WorkingDir != "/src" || eng.cfg.Image != "toolbox:test" {
			t.Errorf("unexpected config %+v", eng.cfg)
		}
	})

	t.Run("sandbox limits", func(t *testing.T) {
		h := eng.host
		if !slices.Equal(h.Binds, []string{root + ":/src"}) {
			t.Errorf("unexpected binds %v", h.Binds)
		}
		if !slices.Equal([]string(h.CapDrop), []string{"ALL"}) {
			t.Errorf("unexpected cap drop %v", h.CapDrop)
		}
		if h.Resources.Memory != 2*1024*1024*1024 || h.Resources.NanoCPUs != 2_000_000_000 {
			t.Errorf("unexpected resources %+v", h.Resources)
		}
		if h.Resources.PidsLimit == nil || *h.Resources.PidsLimit != 256 {
			t.Error("expected pids limit 256")
		}
	})

	t.Run("output is host paths", func(t *testing.T) {
		wantOut := `[{"filePath":"` + filepath.ToSlash(root) + `/contracts/Vault.sol","line":1}]`
		if out.Stdout != wantOut {
			t.Errorf("stdout: got %q, expected %q", out.Stdout, wantOut)
		}
		if out.Stderr != "warning in "+filepath.ToSlash(root)+"/contracts/Vault.sol" {
			t.Errorf("stderr: got %q", out.Stderr)
		}
		if out.ExitCode != 1 {
			t.Errorf("exit code: got %d", out.ExitCode)
		}
	})

	t.Run("container is removed", func(t *testing.T) {
		if !slices.Equal(eng.removed, []string{"c1"}) {
			t.Errorf("expected container removal, got %v", eng.removed)
		}
	})
}

func TestRunner_WorkingDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	eng := &fakeEngine{}
	r, err := newRunner(eng, "img", root)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Run(t.Context(), analyzer.Command{Name: "solhint", Args: []string{"A.sol"}, Dir: filepath.Join(root, "src")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.cfg.WorkingDir != "/src/src" {
		t.Errorf("got %q", eng.cfg.WorkingDir)
	}
	// "A.sol" does not exist relative to the process directory, so it stays as is.
	if eng.cfg.Cmd[0] != "A.sol" {
		t.Errorf("expected relative arg to pass through, got %q", eng.cfg.Cmd[0])
	}

	if _, err := r.Run(t.Context(), analyzer.Command{Name: "slither", Args: []string{"/elsewhere/B.sol"}, Dir: "/elsewhere"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.cfg.WorkingDir != "/src" || eng.cfg.Cmd[0] != "/elsewhere/B.sol" {
		t.Errorf("expected paths outside the root to be left alone, got %q %v", eng.cfg.WorkingDir, eng.cfg.Cmd)
	}
}

// TestRunner_Errors tests missing tools and images.
func TestRunner_Errors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	t.Run("start failure for missing executable", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{startErr: errors.New(`exec: "slither": executable file not found in $PATH: unknown`)}
		r, _ := newRunner(eng, "img", root)
		_, err := r.Run(t.Context(), analyzer.Command{Name: "slither"})
		if !errors.Is(err, analyzer.ErrToolNotFound) {
			t.Errorf("expected ErrToolNotFound, got %v", err)
		}
		if len(eng.removed) != 1 {
			t.Error("expected container to be removed after failed start")
		}
	})

	t.Run("shell exit 127", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{exitCode: 127, stderr: "sh: 1: solhint: command not found"}
		r, _ := newRunner(eng, "img", root)
		_, err := r.Run(t.Context(), analyzer.Command{Name: "solhint"})
		if !errors.Is(err, analyzer.ErrToolNotFound) {
			t.Errorf("expected ErrToolNotFound, got %v", err)
		}
	})

	t.Run("missing image", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{hasImage: false}
		r, _ := newRunner(eng, "img:latest", root)
		if err := r.CheckImage(t.Context()); !errors.Is(err, ErrImageNotFound) {
			t.Errorf("expected ErrImageNotFound, got %v", err)
		}
	})

	t.Run("present image", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{hasImage: true}
		r, _ := newRunner(eng, "img:latest", root)
		if err := r.CheckImage(t.Context()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		eng := &fakeEngine{createErr: context.Canceled}
		r, _ := newRunner(eng, "img", root)
		_, err := r.Run(ctx, analyzer.Command{Name: "slither"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRunner_RelativeArgThatExists(t *testing.T) {
	// Changes the working directory, so not parallel.
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "A.sol"), []byte("contract A {}"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(root)

	eng := &fakeEngine{}
	r, err := newRunner(eng, "img", ".")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(t.Context(), analyzer.Command{Name: "slither", Args: []string{"A.sol", "--json", "-"}}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal([]string(eng.cfg.Cmd), []string{"/src/A.sol", "--json", "-"}) {
		t.Errorf("got %v", eng.cfg.Cmd)
	}
}

package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
)

// DefaultMountPoint is where the project is mounted inside the container.
const DefaultMountPoint = "/src"

// exitCommandNotFound is the shell convention for a missing executable.
const exitCommandNotFound = 127

// Runner runs analyzer commands in a fresh container per invocation.
type Runner struct {
	engine     engine
	image      string
	root       string
	mountPoint string
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner connects to the Docker daemon and returns a runner that mounts
// root (the audited project) into containers started from image.
func NewRunner(image, root string, opts ...Option) (*Runner, error) {
	eng, err := newAPIEngine()
	if err != nil {
		return nil, err
	}
	return newRunner(eng, image, root, opts...)
}

func newRunner(eng engine, image, root string, opts ...Option) (*Runner, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	r := &Runner{
		engine:     eng,
		image:      image,
		root:       filepath.Clean(absRoot),
		mountPoint: DefaultMountPoint,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.engine.Close()
}

// CheckImage reports ErrImageNotFound when the image has not been pulled.
func (r *Runner) CheckImage(ctx context.Context) error {
	ok, err := r.engine.HasImage(ctx, r.image)
	if err != nil {
		return fmt.Errorf("failed to inspect image %s: %w", r.image, err)
	}
	if !ok {
		return fmt.Errorf("%s (run: docker pull %s): %w", r.image, r.image, ErrImageNotFound)
	}
	return nil
}

// Run implements analyzer.CommandRunner.
func (r *Runner) Run(ctx context.Context, cmd analyzer.Command) (analyzer.Output, error) {
	args := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = r.argToContainer(a)
	}
	workDir := r.mountPoint
	if cmd.Dir != "" {
		if p, ok := r.toContainer(cmd.Dir); ok {
			workDir = p
		}
	}

	cfg := &container.Config{
		Image:      r.image,
		Entrypoint: []string{cmd.Name},
		Cmd:        args,
		WorkingDir: workDir,
		User:       hostUser(),
		Tty:        false,
	}

	r.logger.Debug("starting tool container", "image", r.image, "tool", cmd.Name, "args", args, "dir", workDir)

	id, err := r.engine.Create(ctx, cfg, sandboxHostConfig(r.root, r.mountPoint))
	if err != nil {
		return analyzer.Output{ExitCode: -1}, r.wrapErr(ctx, cmd.Name, err)
	}
	defer r.remove(ctx, id)

	if err := r.engine.Start(ctx, id); err != nil {
		if isExecNotFound(err) {
			return analyzer.Output{ExitCode: -1}, fmt.Errorf("%s: %w", cmd.Name, analyzer.ErrToolNotFound)
		}
		return analyzer.Output{ExitCode: -1}, r.wrapErr(ctx, cmd.Name, err)
	}

	code, err := r.engine.Wait(ctx, id)
	if err != nil {
		return analyzer.Output{ExitCode: -1}, r.wrapErr(ctx, cmd.Name, err)
	}

	logs, err := r.engine.Logs(ctx, id)
	if err != nil {
		return analyzer.Output{ExitCode: int(code)}, r.wrapErr(ctx, cmd.Name, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return analyzer.Output{ExitCode: int(code)}, fmt.Errorf("failed to read %s output: %w", cmd.Name, err)
	}

	out := analyzer.Output{
		Stdout:   r.fromContainer(stdout.String()),
		Stderr:   r.fromContainer(stderr.String()),
		ExitCode: int(code),
	}
	if out.ExitCode == exitCommandNotFound && isExecNotFound(errors.New(out.Stderr)) {
		return out, fmt.Errorf("%s: %w", cmd.Name, analyzer.ErrToolNotFound)
	}
	return out, nil
}

func (r *Runner) wrapErr(ctx context.Context, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	return fmt.Errorf("%s in %s: %w", name, r.image, err)
}

// remove deletes the container even when ctx has already expired.
func (r *Runner) remove(ctx context.Context, id string) {
	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := r.engine.Remove(rmCtx, id); err != nil {
		r.logger.Warn("failed to remove tool container", "id", id, "error", err)
	}
}

// argToContainer rewrites args that are host paths under the root.
// Relative args are only rewritten when they name an existing file, so
// flags and values such as "json" or "-" pass through.
func (r *Runner) argToContainer(arg string) string {
	if arg == "" || strings.HasPrefix(arg, "-") {
		return arg
	}
	if !filepath.IsAbs(arg) {
		if _, err := os.Stat(arg); err != nil {
			return arg
		}
	}
	if p, ok := r.toContainer(arg); ok {
		return p
	}
	return arg
}

// toContainer maps a host path under the root to its container path.
func (r *Runner) toContainer(hostPath string) (string, bool) {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return r.mountPoint, true
	}
	return path.Join(r.mountPoint, filepath.ToSlash(rel)), true
}

// fromContainer maps container paths in tool output back to host paths.
func (r *Runner) fromContainer(s string) string {
	if !strings.Contains(s, r.mountPoint+"/") {
		return s
	}
	return strings.ReplaceAll(s, r.mountPoint+"/", filepath.ToSlash(r.root)+"/")
}

func isExecNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "command not found") ||
		strings.Contains(msg, "no such file or directory") && strings.Contains(msg, "exec")
}

// hostUser runs the tools as the invoking user so files created in the
// mounted project keep the right owner.
func hostUser() string {
	if runtime.GOOS == "windows" {
		return ""
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

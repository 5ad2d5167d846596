package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// ErrToolNotFound is returned by a CommandRunner when the executable does not exist.
var ErrToolNotFound = errors.New("tool not found")

// Command is one external process invocation.
type Command struct {
	// Name is the executable.
	Name string
	// Args are the arguments, not including Name.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Output is what a finished process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external commands.
// Run returns an error only when the process could not be run or did not
// finish: a missing executable wraps ErrToolNotFound and an expired context
// wraps the context error. A nonzero exit status is not an error.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// Analyzer produces findings for a single Solidity file.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, file string) *model.ToolResult
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the
	// process was killed. Zero uses five seconds.
	WaitDelay time.Duration
}

// NewExecRunner returns a host runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd and captures stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...) //nolint:gosec // tool names come from configuration
	c.Dir = cmd.Dir
	c.WaitDelay = r.WaitDelay
	if c.WaitDelay == 0 {
		c.WaitDelay = 5 * time.Second
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.ExitCode = -1
		return out, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}

	out.ExitCode = -1
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return out, fmt.Errorf("%s: %w", cmd.Name, ErrToolNotFound)
	}
	return out, fmt.Errorf("exec %s: %w", cmd.Name, err)
}

// RunnerFunc adapts a function to the CommandRunner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Output, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Output, error) {
	return f(ctx, cmd)
}

// ToolVersion runs "binary --version" and returns the first non-empty line
// of its output.
func ToolVersion(ctx context.Context, runner CommandRunner, binary string) (string, error) {
	out, err := runner.Run(ctx, Command{Name: binary, Args: []string{"--version"}})
	if err != nil {
		return "", err
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("%s --version exited with code %d", binary, out.ExitCode)
	}
	for _, text := range []string{out.Stdout, out.Stderr} {
		for line := range strings.Lines(text) {
			if line = strings.TrimSpace(line); line != "" {
				return line, nil
			}
		}
	}
	return "", fmt.Errorf("%s --version printed nothing", binary)
}

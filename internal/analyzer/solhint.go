package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// Solhint runs the solhint linter.
type Solhint struct {
	runner       CommandRunner
	binary       string
	createConfig bool
	rules        map[string]any
	timeout      time.Duration
	displayRoot  string
	logger       *slog.Logger
}

// SolhintOption configures a Solhint adapter.
type SolhintOption func(*Solhint)

// WithSolhintBinary overrides the executable name.
func WithSolhintBinary(binary string) SolhintOption {
	return func(s *Solhint) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithCreateConfig toggles writing a default .solhint.json when none exists.
func WithCreateConfig(create bool) SolhintOption {
	return func(s *Solhint) {
		s.createConfig = create
	}
}

// WithSolhintRules overrides rules of the default config.
func WithSolhintRules(rules map[string]any) SolhintOption {
	return func(s *Solhint) {
		s.rules = rules
	}
}

// WithSolhintTimeout bounds each invocation.
func WithSolhintTimeout(d time.Duration) SolhintOption {
	return func(s *Solhint) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSolhintDisplayRoot shows finding locations relative to dir.
func WithSolhintDisplayRoot(dir string) SolhintOption {
	return func(s *Solhint) {
		s.displayRoot = dir
	}
}

// WithSolhintLogger sets the logger.
func WithSolhintLogger(logger *slog.Logger) SolhintOption {
	return func(s *Solhint) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSolhint creates a Solhint adapter that runs commands through runner.
func NewSolhint(runner CommandRunner, opts ...SolhintOption) *Solhint {
	s := &Solhint{
		runner:       runner,
		binary:       "solhint",
		createConfig: true,
		timeout:      5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the tool name.
func (s *Solhint) Name() string {
	return model.ToolSolhint
}

// Analyze lints file. Every message is reported as a best practice.
func (s *Solhint) Analyze(ctx context.Context, file string) *model.ToolResult {
	start := time.Now()
	result := s.analyze(ctx, file)
	result.Duration = time.Since(start)
	return result
}

func (s *Solhint) analyze(ctx context.Context, file string) *model.ToolResult {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}

	configPath, err := ensureSolhintConfig(abs, s.createConfig, s.rules)
	if err != nil {
		s.logger.Warn("could not write solhint config, using solhint defaults", "file", file, "error", err)
	}

	cmd := s.fromDirCommand(abs)
	if configPath != "" {
		cmd = Command{
			Name: s.binary,
			Args: []string{abs, "--formatter", "json", "--config", configPath},
		}
	}

	out, err := s.run(ctx, cmd)
	if err != nil {
		return model.NewToolError(model.ToolSolhint, s.runError(err))
	}

	// Solhint exits nonzero when error-level rules fire; the JSON is still valid.
	messages, perr := parseSolhintOutput(out.Stdout)
	if perr == nil && (out.ExitCode == 0 || strings.TrimSpace(out.Stdout) != "") {
		return s.toResult(file, messages)
	}

	if out.ExitCode == 0 {
		return model.NewToolError(model.ToolSolhint, "Failed to parse Solhint JSON output: "+perr.Error())
	}

	if isSolhintConfigError(out.Stderr) {
		s.logger.Debug("solhint config failed to load, retrying from file directory", "file", file)
		retry, rerr := s.run(ctx, s.fromDirCommand(abs))
		if rerr == nil && (retry.ExitCode == 0 || strings.TrimSpace(retry.Stdout) != "") {
			if messages, perr := parseSolhintOutput(retry.Stdout); perr == nil {
				return s.toResult(file, messages)
			}
		}
	}

	msg := fmt.Sprintf("Solhint failed: exit status %d", out.ExitCode)
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		msg += "\nSTDERR: " + stderr
	}
	return model.NewToolError(model.ToolSolhint, msg)
}

func (s *Solhint) fromDirCommand(abs string) Command {
	return Command{
		Name: s.binary,
		Args: []string{filepath.Base(abs), "--formatter", "json"},
		Dir:  filepath.Dir(abs),
	}
}

func (s *Solhint) run(ctx context.Context, cmd Command) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.logger.Debug("running solhint", "args", cmd.Args, "dir", cmd.Dir)
	return s.runner.Run(ctx, cmd)
}

func (s *Solhint) runError(err error) string {
	switch {
	case errors.Is(err, ErrToolNotFound):
		return "Solhint not found. Please install it: npm install -g solhint"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Solhint timed out (>%s).", humanDuration(s.timeout))
	default:
		return fmt.Sprintf("Unexpected error running Solhint: %v", err)
	}
}

func (s *Solhint) toResult(file string, messages []solhintMessage) *model.ToolResult {
	result := model.NewToolResult(model.ToolSolhint)
	shown := model.RelativePath(s.displayRoot, file)
	for _, m := range messages {
		msg := m.Message
		if msg == "" {
			msg = "Unknown issue"
		}
		result.Add(model.Finding{
			Rule:     m.RuleID,
			Category: model.CategoryBestPractice,
			Severity: titleCase(m.Severity.String()),
			Message:  msg,
			Location: fmt.Sprintf("%s:%s:%s", shown, optionalInt(m.Line), optionalInt(m.Column)),
			File:     file,
			Line:     derefInt(m.Line),
		})
	}
	return result
}

// titleCase builds a Caser per call since Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func isSolhintConfigError(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "config") &&
		(strings.Contains(lower, "failed to load") || strings.Contains(lower, "cannot read"))
}

// solhintMessage is one reported problem. File paths are parsed but the
// audited path is used for locations so reports do not depend on how
// solhint was invoked.
type solhintMessage struct {
	RuleID   string          `json:"ruleId"`
	Severity solhintSeverity `json:"severity"`
	Message  string          `json:"message"`
	Line     *int            `json:"line"`
	Column   *int            `json:"column"`
	FilePath string          `json:"filePath"`
	File     string          `json:"file"`
}

// solhintSeverity accepts both the string form of the json formatter and
// the numeric ESLint form (1 warning, 2 error).
type solhintSeverity string

func (s *solhintSeverity) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if n, err := strconv.Atoi(string(data)); err == nil {
		switch n {
		case 2:
			*s = "error"
		case 1:
			*s = "warning"
		default:
			*s = "info"
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = solhintSeverity(str)
	return nil
}

func (s solhintSeverity) String() string {
	if s == "" {
		return "info"
	}
	return strings.ToLower(string(s))
}

// parseSolhintOutput accepts a flat message array (optionally ending with a
// {"conclusion": ...} entry), an ESLint-style array of files with nested
// messages, or an object with an "issues" array. Empty output means no issues.
func parseSolhintOutput(stdout string) ([]solhintMessage, error) {
	data := bytes.TrimSpace([]byte(stdout))
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '{' {
		var obj struct {
			Issues []solhintMessage `json:"issues"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		return obj.Issues, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var messages []solhintMessage
	for _, item := range raw {
		var probe struct {
			Conclusion *json.RawMessage `json:"conclusion"`
			Messages   []solhintMessage `json:"messages"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, err
		}
		switch {
		case probe.Conclusion != nil:
			continue
		case probe.Messages != nil:
			messages = append(messages, probe.Messages...)
		default:
			var m solhintMessage
			if err := json.Unmarshal(item, &m); err != nil {
				return nil, err
			}
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func optionalInt(v *int) string {
	if v == nil {
		return "?"
	}
	return strconv.Itoa(*v)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

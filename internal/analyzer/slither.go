package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// Slither exit codes. With --json, slither exits 255 when detectors fired.
const (
	slitherExitClean  = 0
	slitherExitIssues = 255
)

const slitherJSONWarning = "Slither analysis completed but JSON parsing failed. Check output manually."

// Slither runs the slither vulnerability scanner.
type Slither struct {
	runner           CommandRunner
	binary           string
	args             []string
	excludeDetectors []string
	timeout          time.Duration
	logger           *slog.Logger
}

// SlitherOption configures a Slither adapter.
type SlitherOption func(*Slither)

// WithSlitherBinary overrides the executable name.
func WithSlitherBinary(binary string) SlitherOption {
	return func(s *Slither) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithSlitherArgs appends extra arguments to every invocation.
func WithSlitherArgs(args ...string) SlitherOption {
	return func(s *Slither) {
		s.args = append(s.args, args...)
	}
}

// WithExcludeDetectors passes detectors to --exclude.
func WithExcludeDetectors(detectors ...string) SlitherOption {
	return func(s *Slither) {
		s.excludeDetectors = append(s.excludeDetectors, detectors...)
	}
}

// WithSlitherTimeout bounds each invocation.
func WithSlitherTimeout(d time.Duration) SlitherOption {
	return func(s *Slither) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSlitherLogger sets the logger.
func WithSlitherLogger(logger *slog.Logger) SlitherOption {
	return func(s *Slither) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSlither creates a Slither adapter that runs commands through runner.
func NewSlither(runner CommandRunner, opts ...SlitherOption) *Slither {
	s := &Slither{
		runner:  runner,
		binary:  "slither",
		timeout: 5 * time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the tool name.
func (s *Slither) Name() string {
	return model.ToolSlither
}

// Analyze runs slither on file and categorizes its detector results.
func (s *Slither) Analyze(ctx context.Context, file string) *model.ToolResult {
	start := time.Now()
	result := s.analyze(ctx, file)
	result.Duration = time.Since(start)
	return result
}

func (s *Slither) analyze(ctx context.Context, file string) *model.ToolResult {
	out, err := s.run(ctx, s.command(file, true))
	if err != nil {
		return model.NewToolError(model.ToolSlither, s.runError(err))
	}

	stdout := strings.TrimSpace(out.Stdout)
	switch out.ExitCode {
	case slitherExitClean:
		if stdout == "" {
			return model.NewToolResult(model.ToolSlither)
		}
		result, perr := s.parse(file, stdout, out.ExitCode)
		if perr != nil {
			s.logger.Debug("slither output is not JSON, treating as clean", "file", file, "error", perr)
			return model.NewToolResult(model.ToolSlither)
		}
		return result
	case slitherExitIssues:
		if stdout == "" {
			return model.NewToolResult(model.ToolSlither)
		}
		result, perr := s.parse(file, stdout, out.ExitCode)
		if perr != nil {
			return model.NewToolError(model.ToolSlither, classifySlitherError(out.Stderr, out.Stdout, out.ExitCode))
		}
		return result
	}

	msg := classifySlitherError(out.Stderr, out.Stdout, out.ExitCode)
	s.logger.Debug("slither failed, retrying without --json", "file", file, "exit_code", out.ExitCode)

	retry, err := s.run(ctx, s.command(file, false))
	if err == nil && (retry.ExitCode == slitherExitClean || retry.ExitCode == slitherExitIssues) {
		result := model.NewToolResult(model.ToolSlither)
		result.Warning = slitherJSONWarning
		return result
	}
	return model.NewToolError(model.ToolSlither, msg)
}

func (s *Slither) command(file string, jsonOutput bool) Command {
	args := []string{file}
	if jsonOutput {
		args = append(args, "--json", "-")
	}
	args = append(args, s.args...)
	if len(s.excludeDetectors) > 0 {
		args = append(args, "--exclude", strings.Join(s.excludeDetectors, ","))
	}
	return Command{Name: s.binary, Args: args}
}

func (s *Slither) run(ctx context.Context, cmd Command) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.logger.Debug("running slither", "args", cmd.Args)
	return s.runner.Run(ctx, cmd)
}

func (s *Slither) runError(err error) string {
	switch {
	case errors.Is(err, ErrToolNotFound):
		return "Slither not found. Please install it: pip install slither-analyzer"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Slither analysis timed out (>%s). File may be too complex or have dependency issues.", humanDuration(s.timeout))
	default:
		return fmt.Sprintf("Unexpected error running Slither: %v", err)
	}
}

// slitherOutput is the document printed by `slither --json -`.
type slitherOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Results struct {
		Detectors []slitherDetector `json:"detectors"`
	} `json:"results"`
}

type slitherDetector struct {
	Check       string           `json:"check"`
	Impact      string           `json:"impact"`
	Confidence  string           `json:"confidence"`
	Description string           `json:"description"`
	Elements    []slitherElement `json:"elements"`
}

type slitherElement struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	SourceMapping struct {
		FilenameShort    string `json:"filename_short"`
		FilenameRelative string `json:"filename_relative"`
		Lines            []int  `json:"lines"`
	} `json:"source_mapping"`
}

func (s *Slither) parse(file, stdout string, exitCode int) (*model.ToolResult, error) {
	var doc slitherOutput
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		return nil, err
	}

	if !doc.Success && doc.Error != "" {
		return model.NewToolError(model.ToolSlither, classifySlitherError(doc.Error, "", exitCode)), nil
	}

	result := model.NewToolResult(model.ToolSlither)
	for _, d := range doc.Results.Detectors {
		impact := d.Impact
		if impact == "" {
			impact = "Info"
		}
		category := CategorizeSlither(d.Description, impact)

		if len(d.Elements) == 0 {
			result.Add(model.Finding{
				Rule:     d.Check,
				Category: category,
				Severity: impact,
				Message:  strings.TrimSpace(d.Description),
				Location: file + ":?",
				File:     file,
			})
			continue
		}

		for _, e := range d.Elements {
			name := e.SourceMapping.FilenameShort
			if name == "" {
				name = e.SourceMapping.FilenameRelative
			}
			if name == "" {
				name = file
			}
			line := 0
			if len(e.SourceMapping.Lines) > 0 {
				line = e.SourceMapping.Lines[0]
			}
			result.Add(model.Finding{
				Rule:     d.Check,
				Category: category,
				Severity: impact,
				Message:  strings.TrimSpace(d.Description),
				Location: name + ":" + formatLines(e.SourceMapping.Lines),
				File:     name,
				Line:     line,
			})
		}
	}
	return result, nil
}

// CategorizeSlither buckets a detector result. Keywords in the description
// take precedence; the detector impact decides otherwise.
func CategorizeSlither(description, impact string) model.Category {
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "reentrancy"), strings.Contains(desc, "vulnerability"):
		return model.CategoryVulnerability
	case strings.Contains(desc, "gas"), strings.Contains(desc, "optimization"):
		return model.CategoryInefficiency
	}

	switch strings.ToLower(impact) {
	case "high", "medium":
		return model.CategoryVulnerability
	case "optimization":
		return model.CategoryInefficiency
	default:
		return model.CategoryBestPractice
	}
}

// formatLines renders a line list as "12" or "12-14", "?" when empty.
func formatLines(lines []int) string {
	if len(lines) == 0 {
		return "?"
	}
	lo, hi := lines[0], lines[0]
	for _, l := range lines[1:] {
		lo = min(lo, l)
		hi = max(hi, l)
	}
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

// classifySlitherError turns raw slither output into a readable message.
// The message always starts with the exit code.
func classifySlitherError(stderr, stdout string, exitCode int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Slither exited with code %d", exitCode)

	text := stderr
	if text == "" {
		text = stdout
	}

	switch {
	case strings.Contains(text, "Compilation error") || strings.Contains(text, "ParserError"):
		var errLines []string
		for _, line := range strings.Split(text, "\n") {
			if strings.Contains(strings.ToLower(line), "error") {
				errLines = append(errLines, line)
			}
		}
		if len(errLines) > 0 {
			b.WriteString("\nCompilation Error: " + errLines[0])
			if len(errLines) > 1 {
				b.WriteString("\n" + strings.Join(errLines[1:min(3, len(errLines))], "\n"))
			}
		}
	case strings.Contains(text, "No contracts were found"):
		b.WriteString("\nNo contracts found in the file")
	case strings.Contains(text, "FileNotFoundError") || strings.Contains(text, "No such file"):
		b.WriteString("\nFile not found or cannot be read")
	case strings.Contains(text, "Import error") || strings.Contains(text, "ImportError"):
		b.WriteString("\nImport/dependency error - missing library or incorrect path")
	case strings.Contains(strings.ToLower(text), "solc"):
		b.WriteString("\nSolidity compiler issue - check compiler version")
	case stderr != "":
		lines := strings.Split(strings.TrimSpace(stderr), "\n")
		b.WriteString("\n" + strings.Join(lines[:min(3, len(lines))], "\n"))
	case stdout != "":
		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		b.WriteString("\n" + lines[0])
	}
	return b.String()
}

// humanDuration renders whole minutes as "5 minutes" and anything else
// with time.Duration formatting.
func humanDuration(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

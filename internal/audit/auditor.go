package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
	"github.com/nao1215/somnia-auditor/internal/assistant"
	"github.com/nao1215/somnia-auditor/internal/config"
	"github.com/nao1215/somnia-auditor/internal/discovery"
	"github.com/nao1215/somnia-auditor/internal/docker"
	"github.com/nao1215/somnia-auditor/internal/model"
	"github.com/nao1215/somnia-auditor/internal/pipeline"
)

var (
	// ErrNoSolidityFiles is returned when discovery finds nothing to audit.
	ErrNoSolidityFiles = errors.New("no .sol files found")

	// ErrTargetNotFound is returned when the audit path does not exist.
	ErrTargetNotFound = discovery.ErrTargetNotFound

	// ErrVulnerabilitiesFound signals a completed audit that reported at
	// least one vulnerability. The CLI maps it to exit code 1.
	ErrVulnerabilitiesFound = errors.New("vulnerabilities found")
)

// Request selects what to audit. Tool settings come from the Auditor's
// config; a Request only carries what may differ between runs.
type Request struct {
	// Target is a .sol file or a directory. Any other existing file selects
	// the working directory's project folders. A missing path is an error.
	Target string

	// Recursive walks subdirectories of a directory target.
	Recursive bool

	// IncludeLibs re-admits dependency folders.
	IncludeLibs bool

	// Excludes are extra directory names or path prefixes to skip.
	Excludes []string
}

// RequestFromConfig builds a Request from the CLI configuration.
func RequestFromConfig(cfg *config.Config) Request {
	return Request{
		Target:      cfg.Target,
		Recursive:   cfg.Recursive,
		IncludeLibs: cfg.IncludeLibs,
		Excludes:    cfg.Excludes,
	}
}

// Progress receives audit progress. Both callbacks are optional. FileDone
// may be called from several goroutines when Jobs is above one; the Auditor
// serializes the calls.
type Progress struct {
	// Started is called once with the discovered files.
	Started func(files []string)

	// FileDone is called after each file has been analyzed.
	FileDone func(result *model.FileResult, index int)
}

// Auditor runs audits with a fixed tool configuration.
type Auditor struct {
	cfg        *config.Config
	runner     analyzer.CommandRunner
	summarizer assistant.Summarizer
	progress   Progress
	logger     *slog.Logger
	workDir    string
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithRunner replaces the command runner. By default tools run on the host,
// or in Docker when the config asks for it.
func WithRunner(r analyzer.CommandRunner) Option {
	return func(a *Auditor) {
		a.runner = r
	}
}

// WithSummarizer replaces the assistant used for the AI summary.
func WithSummarizer(s assistant.Summarizer) Option {
	return func(a *Auditor) {
		a.summarizer = s
	}
}

// WithProgress sets the progress callbacks.
func WithProgress(p Progress) Option {
	return func(a *Auditor) {
		a.progress = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithWorkDir sets the directory used when the target does not exist.
func WithWorkDir(dir string) Option {
	return func(a *Auditor) {
		a.workDir = dir
	}
}

// New creates an Auditor for cfg.
func New(cfg *config.Config, opts ...Option) *Auditor {
	a := &Auditor{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.summarizer == nil && cfg.AISummary {
		a.summarizer = assistant.New(
			cfg.ResolveAPIKey(),
			assistant.WithModel(cfg.AIModel),
			assistant.WithBaseURL(cfg.AIBaseURL),
			assistant.WithLogger(a.logger),
		)
	}
	return a
}

// Run audits req.Target and returns the finished report.
// Tool failures are recorded in the report, not returned. The error is
// ErrNoSolidityFiles when discovery is empty, or a setup or cancellation
// error.
func (a *Auditor) Run(ctx context.Context, req Request) (*model.AuditReport, error) {
	start := time.Now()

	target, workDir, err := a.resolveTarget(req.Target)
	if err != nil {
		return nil, err
	}

	files, err := discovery.Find(target, discovery.Options{
		Recursive:     req.Recursive,
		IncludeLibs:   req.IncludeLibs,
		ExtraExcludes: req.Excludes,
		WorkDir:       workDir,
	})
	if errors.Is(err, ErrTargetNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, req.Target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to discover Solidity files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", req.Target, ErrNoSolidityFiles)
	}
	if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() && filepath.Ext(target) != discovery.SolidityExt {
		// project fallback: report relative to the folder that was searched
		target = workDir
	}

	a.logger.Info("starting audit", "target", target, "files", len(files), "jobs", a.jobs(), "mode", a.cfg.Mode())
	if a.progress.Started != nil {
		a.progress.Started(files)
	}

	runner, cleanup, err := a.commandRunner(ctx, target)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	report := model.NewAuditReport(target)
	report.DateScanned = start
	report.Mode = a.cfg.Mode()
	report.Files = files

	bp := pipeline.NewBatchProcessor(
		a.pipelineFactory(runner, target),
		pipeline.WithConcurrency(a.jobs()),
		pipeline.WithBatchLogger(a.logger),
	)

	results := make([]*model.FileResult, len(files))
	var mu sync.Mutex
	err = bp.ProcessBatchWithCallback(ctx, files, func(result *model.FileResult, index int) {
		mu.Lock()
		defer mu.Unlock()
		results[index] = result
		if a.progress.FileDone != nil {
			a.progress.FileDone(result, index)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("audit interrupted: %w", err)
	}

	report.Results = results
	report.Finalize()

	if a.cfg.AISummary && a.summarizer != nil {
		report.AISummary = a.summarizer.Summarize(ctx, report)
	}

	report.Duration = time.Since(start)
	a.logger.Info("audit complete",
		"target", target,
		"issues", report.Summary.TotalIssues,
		"vulnerabilities", report.Summary.Vulnerabilities,
		"elapsed", report.Duration,
	)
	return report, nil
}

// resolveTarget makes target absolute and picks the fallback directory.
func (a *Auditor) resolveTarget(target string) (string, string, error) {
	if target == "" {
		target = "."
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	workDir := a.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return "", "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", a.workDir, err)
	}
	return abs, workDir, nil
}

// displayRoot is the directory finding locations are shown relative to.
func displayRoot(target string) string {
	if filepath.Ext(target) == discovery.SolidityExt {
		return filepath.Dir(target)
	}
	return target
}

func (a *Auditor) jobs() int {
	if a.cfg.Jobs < 1 {
		return config.DefaultJobs
	}
	return a.cfg.Jobs
}

// commandRunner returns the runner for this audit and a cleanup function.
// In Docker mode the project root of target is mounted into the container.
func (a *Auditor) commandRunner(ctx context.Context, target string) (analyzer.CommandRunner, func(), error) {
	if a.runner != nil {
		return a.runner, func() {}, nil
	}
	if !a.cfg.Docker {
		return analyzer.NewExecRunner(), func() {}, nil
	}

	root := analyzer.FindProjectRoot(target)
	dr, err := docker.NewRunner(a.cfg.DockerImage, root, docker.WithLogger(a.logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}
	if err := dr.CheckImage(ctx); err != nil {
		_ = dr.Close()
		return nil, nil, err
	}
	a.logger.Debug("running tools in Docker", "image", a.cfg.DockerImage, "root", root)
	return dr, func() {
		if err := dr.Close(); err != nil {
			a.logger.Warn("failed to close Docker client", "error", err)
		}
	}, nil
}

// pipelineFactory builds the per-file pipeline. The analyzers are shared
// between pipelines; they hold no per-file state.
func (a *Auditor) pipelineFactory(runner analyzer.CommandRunner, target string) func() *pipeline.Pipeline {
	slither := analyzer.NewSlither(runner,
		analyzer.WithSlitherBinary(a.cfg.Slither.Binary),
		analyzer.WithSlitherArgs(a.cfg.Slither.Args...),
		analyzer.WithExcludeDetectors(a.cfg.Slither.ExcludeDetectors...),
		analyzer.WithSlitherTimeout(a.cfg.Timeout),
		analyzer.WithSlitherLogger(a.logger),
	)
	solhint := analyzer.NewSolhint(runner,
		analyzer.WithSolhintBinary(a.cfg.Solhint.Binary),
		analyzer.WithCreateConfig(a.cfg.Solhint.CreateConfig),
		analyzer.WithSolhintRules(a.cfg.Solhint.Rules),
		analyzer.WithSolhintTimeout(a.cfg.Timeout),
		analyzer.WithSolhintDisplayRoot(displayRoot(target)),
		analyzer.WithSolhintLogger(a.logger),
	)

	return func() *pipeline.Pipeline {
		p := pipeline.New(
			pipeline.WithLogger(a.logger),
			pipeline.WithContinueOnError(true),
		)
		p.AddSteps(
			pipeline.NewSlitherStep(slither, a.logger),
			pipeline.NewSolhintStep(solhint, a.logger),
			pipeline.NewSuppressionStep(a.cfg.IgnoreRules, target, a.logger),
		)
		return p
	}
}

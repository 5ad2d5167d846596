package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/somnia-auditor/internal/analyzer"
	"github.com/nao1215/somnia-auditor/internal/model"
)

// Step names.
const (
	StepSlither     = "slither"
	StepSolhint     = "solhint"
	StepSuppression = "suppression"
)

// SlitherStep runs the vulnerability scanner and stores its result.
type SlitherStep struct {
	analyzer analyzer.Analyzer
	logger   *slog.Logger
}

// NewSlitherStep creates a SlitherStep.
func NewSlitherStep(a analyzer.Analyzer, logger *slog.Logger) *SlitherStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlitherStep{analyzer: a, logger: logger}
}

// Name returns the step name.
func (s *SlitherStep) Name() string { return StepSlither }

// Do implements Step.
func (s *SlitherStep) Do(ctx context.Context, result *model.FileResult) error {
	result.Slither = s.analyzer.Analyze(ctx, result.Path)
	logToolResult(s.logger, result.Path, result.Slither)
	return nil
}

// SolhintStep runs the linter and stores its result.
type SolhintStep struct {
	analyzer analyzer.Analyzer
	logger   *slog.Logger
}

// NewSolhintStep creates a SolhintStep.
func NewSolhintStep(a analyzer.Analyzer, logger *slog.Logger) *SolhintStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SolhintStep{analyzer: a, logger: logger}
}

// Name returns the step name.
func (s *SolhintStep) Name() string { return StepSolhint }

// Do implements Step.
func (s *SolhintStep) Do(ctx context.Context, result *model.FileResult) error {
	result.Solhint = s.analyzer.Analyze(ctx, result.Path)
	logToolResult(s.logger, result.Path, result.Solhint)
	return nil
}

func logToolResult(logger *slog.Logger, file string, r *model.ToolResult) {
	switch {
	case r == nil:
	case r.HasError():
		logger.Debug("tool failed", "tool", r.Tool, "file", file, "error", r.Error)
	default:
		logger.Debug("tool finished",
			"tool", r.Tool,
			"file", file,
			"findings", r.Count(),
			"duration", r.Duration,
		)
	}
}

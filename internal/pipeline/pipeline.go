package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence on the same FileResult.
type Step interface {
	// Do executes the step. Tool failures belong in the result; an error
	// return means the step itself could not run.
	Do(ctx context.Context, result *model.FileResult) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order for one file.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after one fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps on result.
// Cancellation is checked before each step. The first step error is
// recorded in result.Error and returned unless continueOnError is set.
func (p *Pipeline) Execute(ctx context.Context, result *model.FileResult) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "file", result.Path, "reason", err)
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "file", result.Path)

		if err := step.Do(ctx, result); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "file", result.Path, "error", err)
			if result.Error == "" {
				result.Error = err.Error()
			}
			if !p.continueOnError {
				return err
			}
			continue
		}
		result.PerformedSteps = append(result.PerformedSteps, step.Name())
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

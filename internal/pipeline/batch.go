package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/somnia-auditor/internal/model"
)

// DefaultConcurrency processes one file at a time.
const DefaultConcurrency = 1

// BatchProcessor runs a fresh pipeline for each file with bounded concurrency.
type BatchProcessor struct {
	pipelineFactory func() *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of files analyzed at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. pipelineFactory is called
// once per file.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch analyzes files and returns one result per file in input order.
// Step failures are recorded in the results; the error is non-nil only when
// ctx was cancelled, in which case unprocessed entries are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, files []string) ([]*model.FileResult, error) {
	results := make([]*model.FileResult, len(files))
	err := bp.ProcessBatchWithCallback(ctx, files, func(result *model.FileResult, index int) {
		results[index] = result
	})
	return results, err
}

// ProcessBatchWithCallback analyzes files and calls callback as each file
// completes. With concurrency above one, callback runs on several
// goroutines and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	files []string,
	callback func(result *model.FileResult, index int),
) error {
	bp.logger.Debug("starting batch", "files", len(files), "concurrency", bp.concurrency)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result := model.NewFileResult(file)
			if err := bp.pipelineFactory().Execute(ctx, result); err != nil {
				bp.logger.Warn("file analysis incomplete", "file", file, "error", err)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
			}

			callback(result, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Debug("batch complete", "files", len(files), "elapsed", time.Since(start))
	return err
}

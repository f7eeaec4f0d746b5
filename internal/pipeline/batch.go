package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
)

// DefaultConcurrency is the number of URLs analysed at once unless
// WithConcurrency says otherwise.
const DefaultConcurrency = 4

// BatchProcessor analyses many URLs concurrently with one Pipeline.
// Fetch pacing is the job of the fetcher's rate limiter, which every
// analysis of the batch shares.
type BatchProcessor struct {
	pipeline    *Pipeline
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger for batch-level events.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent analyses.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor running p.
func NewBatchProcessor(p *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipeline:    p,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = urlvetlog.Discard()
	}
	return bp
}

// ProcessBatch analyses every URL and returns the reports in input order.
// An entry is nil when its analysis never started because ctx ended.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, urls []string) ([]*model.Report, error) {
	reports := make([]*model.Report, len(urls))
	err := bp.ProcessBatchWithCallback(ctx, urls, func(report *model.Report, index int) {
		// Each index is written by exactly one goroutine.
		reports[index] = report
	})
	return reports, err
}

// ProcessBatchWithCallback analyses every URL and calls callback with each
// finished report and its index in urls. callback runs on the analysing
// goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	urls []string,
	callback func(report *model.Report, index int),
) error {
	bp.logger.Info("starting batch analysis",
		"total", len(urls),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			report, err := bp.pipeline.Analyze(ctx, u)
			if report != nil {
				callback(report, i)
			}
			if err != nil {
				bp.logger.Warn("analysis failed", "url", u, "index", i+1, "error", err)
				// Analyze fails only on cancellation or misconfiguration,
				// both of which end the whole batch.
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch analysis complete",
		"total", len(urls),
		"elapsed", time.Since(start),
	)
	return err
}

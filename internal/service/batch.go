package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/anime-shed/content-analyzer-go/internal/analyzer"
	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

const codeCancelled = "CANCELLED"

type batchPlan struct {
	maxConcurrent int
	size          int
	delay         time.Duration
	limiter       *rate.Limiter
}

func (p *Pipeline) planBatch(n int, cfg models.BatchConfig) (batchPlan, error) {
	plan := batchPlan{maxConcurrent: cfg.MaxConcurrent, size: cfg.BatchSize}
	if plan.maxConcurrent <= 0 {
		plan.maxConcurrent = p.settings.BatchMaxConcurrent
	}
	if plan.size <= 0 || plan.size > n {
		plan.size = n
	}
	if s := strings.TrimSpace(cfg.DelayBetweenBatches); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return plan, apperrors.NewValidationError("delay_between_batches must be a non-negative duration such as 500ms", err)
		}
		plan.delay = d
	}
	if cfg.RatePerSecond < 0 {
		return plan, apperrors.NewValidationError("rate_per_second cannot be negative", nil)
	}
	if cfg.RatePerSecond > 0 {
		plan.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return plan, nil
}

// AnalyzeBatch analyses every ref and returns one outcome per ref, in order.
// At most MaxConcurrent provider calls are in flight across the whole batch.
// Without ContinueOnError the first failure stops items that have not started;
// those, and items reached after ctx ends, are reported as skipped.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, refs []string, opts models.AnalysisOptions, cfg models.BatchConfig) ([]models.BatchOutcome, error) {
	if len(refs) == 0 {
		return nil, apperrors.NewValidationError("batch needs at least one content reference", nil)
	}
	plan, err := p.planBatch(len(refs), cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcomes := make([]models.BatchOutcome, len(refs))
	callCtx := analyzer.WithCallLimit(ctx, semaphore.NewWeighted(int64(plan.maxConcurrent)))

	pool := analyzer.NewWorkerPool(plan.maxConcurrent)
	pool.Start()
	defer pool.Close()

	var stopped atomic.Bool
	for offset := 0; offset < len(refs); offset += plan.size {
		if offset > 0 && plan.delay > 0 {
			if err := sleepCtx(ctx, plan.delay); err != nil {
				stopped.Store(true)
			}
		}

		end := offset + plan.size
		if end > len(refs) {
			end = len(refs)
		}
		for i := offset; i < end; i++ {
			pool.Submit(func() {
				outcomes[i] = p.batchItem(callCtx, refs[i], opts, plan.limiter, &stopped, cfg.ContinueOnError)
			})
		}
		pool.Wait()
	}

	stats := pool.GetStats()
	succeeded, failed, skipped := countOutcomes(outcomes)
	p.logger.WithFields(logrus.Fields{
		"items":          len(refs),
		"succeeded":      succeeded,
		"failed":         failed,
		"skipped":        skipped,
		"max_concurrent": plan.maxConcurrent,
		"batch_size":     plan.size,
		"jobs":           stats.CompletedJobs,
		"duration":       time.Since(start).String(),
	}).Info("Batch analysis completed")
	return outcomes, nil
}

func (p *Pipeline) batchItem(ctx context.Context, ref string, opts models.AnalysisOptions, limiter *rate.Limiter, stopped *atomic.Bool, continueOnError bool) models.BatchOutcome {
	if stopped.Load() || ctx.Err() != nil {
		return skippedOutcome(ref)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return skippedOutcome(ref)
		}
	}

	result := p.Analyze(ctx, models.AnalysisRequest{ContentRef: ref, Options: opts})
	if result.Success {
		return models.BatchOutcome{Ref: ref, Status: models.BatchSucceeded, Result: result}
	}
	if !continueOnError {
		stopped.Store(true)
	}
	return models.BatchOutcome{Ref: ref, Status: models.BatchFailed, Result: result, Error: result.Error}
}

func skippedOutcome(ref string) models.BatchOutcome {
	return models.BatchOutcome{
		Ref:    ref,
		Status: models.BatchSkipped,
		Error:  &models.Failure{Code: codeCancelled, Message: "item was not started"},
	}
}

func countOutcomes(outcomes []models.BatchOutcome) (succeeded, failed, skipped int) {
	for _, o := range outcomes {
		switch o.Status {
		case models.BatchSucceeded:
			succeeded++
		case models.BatchFailed:
			failed++
		default:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

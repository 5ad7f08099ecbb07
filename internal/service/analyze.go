package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/analyzer"
	"github.com/anime-shed/content-analyzer-go/internal/cache"
	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/monitor"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/optimizer"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/repository"
	"github.com/anime-shed/content-analyzer-go/internal/strategy"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
	"github.com/anime-shed/content-analyzer-go/pkg/validation"
)

// Experiment metric names recorded per analysis
const (
	MetricQuality   = "quality"
	MetricLatencyMs = "latency_ms"
	MetricCost      = "cost"
	MetricTokens    = "tokens"
)

// outcome carries what one pass through the pipeline learned, beyond the result
type outcome struct {
	result   *models.AnalysisResult
	cached   bool
	cost     decimal.Decimal
	bytes    int
	decision strategy.Decision
}

// AnalyzeContent runs one analysis and always returns a result. Failures are
// normalised into result.Error.
func (p *Pipeline) AnalyzeContent(ctx context.Context, ref string, opts models.AnalysisOptions) *models.AnalysisResult {
	return p.Analyze(ctx, models.AnalysisRequest{ContentRef: ref, Options: opts})
}

// Analyze is AnalyzeContent for a full request. A supplied ContentHash lets a
// cached answer be served without fetching the content.
func (p *Pipeline) Analyze(ctx context.Context, req models.AnalysisRequest) *models.AnalysisResult {
	start := time.Now()
	fields := logrus.Fields{"content_ref": req.ContentRef}
	if req.CorrelationID != "" {
		fields["correlation_id"] = req.CorrelationID
	}
	p.notify(ctx, observer.PipelineEvent{EventType: observer.AnalysisStarted, ContentRef: req.ContentRef})

	out, err := p.analyze(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		// A caller walking away is not a pipeline failure and must not skew the baselines
		cancelled := errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
		if cancelled {
			err = context.Canceled
		}
		failure := apperrors.ToFailure(err)
		result := models.FailedResult(failure)
		result.ProcessingTimeSec = elapsed.Seconds()

		if cancelled {
			p.logger.WithFields(fields).WithField("elapsed", elapsed).Info("Content analysis cancelled by caller")
			return result
		}

		p.logger.WithFields(fields).WithError(err).Warn("Content analysis failed")
		p.notify(ctx, observer.PipelineEvent{
			EventType:      observer.AnalysisFailed,
			ContentRef:     req.ContentRef,
			ProcessingTime: elapsed,
			ErrorMessage:   failure.Message,
			Metadata:       map[string]interface{}{"code": failure.Code},
		})
		p.monitor.Record(monitor.OpAnalyzeContent, monitor.Metrics{Latency: elapsed, Error: true},
			map[string]string{"code": failure.Code})
		return result
	}

	result := out.result
	if out.cached {
		p.notify(ctx, observer.PipelineEvent{
			EventType:      observer.CacheHit,
			ContentRef:     req.ContentRef,
			Provider:       result.Provider,
			ProcessingTime: elapsed,
			Success:        true,
		})
		p.monitor.Record(monitor.OpCacheHit, monitor.Metrics{Latency: elapsed, Quality: result.QualityScore},
			map[string]string{"provider": result.Provider})
		return result
	}

	cost := out.cost.InexactFloat64()
	metrics := monitor.Metrics{
		Latency: elapsed,
		Quality: result.QualityScore,
		Cost:    cost,
	}
	if result.TokenUsage.Total > 0 {
		metrics.TokenEfficiency = result.QualityScore / (float64(result.TokenUsage.Total) / 1000)
	}
	if elapsed > 0 {
		metrics.Throughput = float64(out.bytes) / elapsed.Seconds()
	}
	p.monitor.Record(monitor.OpAnalyzeContent, metrics, map[string]string{
		"provider": result.Provider,
		"strategy": out.decision.Strategy,
	})

	if id := out.decision.ExperimentID; id != "" {
		err := p.experiments.RecordResult(ctx, id, out.decision.VariantID, map[string]float64{
			MetricQuality:   result.QualityScore,
			MetricLatencyMs: float64(elapsed.Milliseconds()),
			MetricCost:      cost,
			MetricTokens:    float64(result.TokenUsage.Total),
		})
		if err != nil {
			p.logger.WithError(err).WithField("experiment_id", id).Warn("Failed to record experiment result")
		}
	}

	p.logger.WithFields(fields).WithFields(logrus.Fields{
		"provider":        result.Provider,
		"quality":         result.QualityScore,
		"escalated":       result.Escalated,
		"below_threshold": result.BelowThreshold,
		"tokens":          result.TokenUsage.Total,
	}).Info("Content analysis completed")
	p.notify(ctx, observer.PipelineEvent{
		EventType:      observer.AnalysisCompleted,
		ContentRef:     req.ContentRef,
		Provider:       result.Provider,
		ProcessingTime: elapsed,
		Success:        true,
	})
	return result
}

func (p *Pipeline) analyze(ctx context.Context, req models.AnalysisRequest) (*outcome, error) {
	opts := req.Options
	if err := p.content.ValidateContentRef(req.ContentRef); err != nil {
		return nil, err
	}
	optionsKey := cache.OptionsKey(opts)

	// A caller-supplied hash can answer from cache before any fetch
	if req.ContentHash != "" {
		key := cache.KeyFor(req.ContentHash, optionsKey)
		if entry, ok := p.optimizer.CheckCache(ctx, key, req.ContentHash, cache.LookupOptions{OptionsKey: optionsKey}); ok {
			return cachedOutcome(entry), nil
		}
	}

	content, err := p.content.Resolve(ctx, req.ContentRef)
	if err != nil {
		p.notify(ctx, observer.PipelineEvent{
			EventType:    observer.ContentFetchFailed,
			ContentRef:   req.ContentRef,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}
	p.notify(ctx, observer.PipelineEvent{
		EventType:  observer.ContentFetched,
		ContentRef: req.ContentRef,
		Success:    true,
		Metadata:   map[string]interface{}{"bytes": len(content.Data), "mime_type": content.MimeType},
	})
	if req.ContentHash != "" && req.ContentHash != content.Hash {
		p.logger.WithFields(logrus.Fields{
			"content_ref": req.ContentRef,
			"supplied":    req.ContentHash,
			"computed":    content.Hash,
		}).Warn("Supplied content hash does not match fetched content")
	}

	key := cache.KeyFor(content.Hash, optionsKey)
	embedding := p.embed(ctx, content, opts)
	if embedding != nil || req.ContentHash != content.Hash {
		lookup := cache.LookupOptions{
			UseSemantic: embedding != nil,
			Threshold:   p.settings.SemanticThreshold,
			Embedding:   embedding,
			OptionsKey:  optionsKey,
		}
		if entry, ok := p.optimizer.CheckCache(ctx, key, content.Hash, lookup); ok {
			return cachedOutcome(entry), nil
		}
	}

	decision, err := p.selector.Select(opts, strategy.ConstraintsFrom(opts))
	if err != nil {
		return nil, err
	}

	prompts := analyzer.BuildPrompts(opts)
	optimized := p.optimizer.Optimize(prompts.Description, decision.Provider, optimizer.Options{
		MaxTokens:        opts.MaxTokens,
		AllowDowngrade:   opts.AllowDowngrade,
		CompressionLevel: opts.CompressionLevel,
		DetailLevel:      opts.DetailLevel,
		OutputTokens:     opts.MaxTokens,
	})
	prompts.Description = optimized.OptimizedPrompt
	prompts.AltText = optimizer.Compress(prompts.AltText, opts.CompressionLevel, 0)
	prompts.SEO = optimizer.Compress(prompts.SEO, opts.CompressionLevel, 0)
	target := optimized.RecommendedModel

	p.logger.WithFields(logrus.Fields{
		"content_ref": req.ContentRef,
		"strategy":    decision.Strategy,
		"provider":    target.ID,
		"complexity":  decision.Complexity,
		"reason":      decision.Reason,
		"downgraded":  optimized.Downgraded,
	}).Debug("Provider selected")

	input := analyzer.Input{Content: content.Data, MimeType: content.MimeType, Options: opts}
	result, err := p.executor.Execute(ctx, input, prompts, target)
	if err != nil {
		return nil, err
	}
	cost := target.Cost(result.TokenUsage.Total)
	criteria := p.scorer.CriteriaFor(opts)
	p.score(result, criteria)

	threshold := p.settings.QualityThreshold
	if opts.QualityFloor > 0 {
		threshold = opts.QualityFloor
	}

	if result.QualityScore < threshold {
		result, cost = p.escalate(ctx, input, prompts, target, result, cost, criteria, threshold)
	}

	if !result.BelowThreshold {
		p.optimizer.Remember(ctx, key, content.Hash, optionsKey, *result, embedding)
	}
	return &outcome{result: result, cost: cost, bytes: len(content.Data), decision: decision}, nil
}

// escalate re-runs the analysis once on the next higher tier and keeps the
// better result. There is never a second escalation.
func (p *Pipeline) escalate(ctx context.Context, input analyzer.Input, prompts analyzer.PromptSet, current provider.Config,
	first *models.AnalysisResult, cost decimal.Decimal, criteria validation.QualityCriteria, threshold float64) (*models.AnalysisResult, decimal.Decimal) {

	best := first
	next, ok := p.catalog.NextHigher(current.Tier)
	if ok {
		p.notify(ctx, observer.PipelineEvent{
			EventType: observer.QualityEscalated,
			Provider:  next.ID,
			Metadata: map[string]interface{}{
				"from":      current.ID,
				"quality":   first.QualityScore,
				"threshold": threshold,
			},
		})

		second, err := p.executor.Execute(ctx, input, prompts, next)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"from": current.ID,
				"to":   next.ID,
			}).Warn("Escalated analysis failed, keeping first result")
		} else {
			cost = cost.Add(next.Cost(second.TokenUsage.Total))
			p.score(second, criteria)
			second.TokenUsage = second.TokenUsage.Add(first.TokenUsage)
			if second.QualityScore > first.QualityScore {
				best = second
			} else {
				best.TokenUsage = second.TokenUsage
			}
		}
		best.Escalated = true
	}

	if best.QualityScore < threshold {
		best.BelowThreshold = true
		p.logger.WithError(apperrors.NewQualityBelowThresholdError(best.QualityScore, threshold)).WithFields(logrus.Fields{
			"provider":  best.Provider,
			"escalated": best.Escalated,
		}).Warn("Result below quality threshold")
	}
	return best, cost
}

func (p *Pipeline) score(result *models.AnalysisResult, criteria validation.QualityCriteria) {
	report := p.scorer.EvaluateResult(result, criteria)
	scores := report.Scores
	result.QualityScores = &scores
	result.QualityScore = report.Overall
}

// embed computes the semantic cache embedding. Failures only disable the
// semantic lookup for this request.
func (p *Pipeline) embed(ctx context.Context, content *repository.Content, opts models.AnalysisOptions) []float32 {
	if p.embedder == nil || p.cache == nil || !opts.SemanticCacheEnabled() {
		return nil
	}
	text, ok := cache.SemanticText(content.MimeType, content.Data, opts)
	if !ok {
		return nil
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.logger.WithError(err).WithField("content_ref", content.Ref).Warn("Embedding failed, skipping semantic cache")
		return nil
	}
	return vec
}

func cachedOutcome(entry *cache.Entry) *outcome {
	result := entry.Result
	return &outcome{result: &result, cached: true}
}

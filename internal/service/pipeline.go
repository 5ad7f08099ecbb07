package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/analyzer"
	"github.com/anime-shed/content-analyzer-go/internal/cache"
	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/experiment"
	"github.com/anime-shed/content-analyzer-go/internal/monitor"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/optimizer"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/repository"
	"github.com/anime-shed/content-analyzer-go/internal/strategy"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
	"github.com/anime-shed/content-analyzer-go/pkg/validation"
)

const (
	DefaultQualityThreshold   = 0.7
	DefaultBatchMaxConcurrent = 3
	defaultExpiryInterval     = 30 * time.Second
)

// QualityScorer judges an analysis result
type QualityScorer interface {
	CriteriaFor(opts models.AnalysisOptions) validation.QualityCriteria
	EvaluateResult(result *models.AnalysisResult, c validation.QualityCriteria) validation.QualityReport
}

// Dependencies are the collaborators a Pipeline owns for its lifetime.
// Catalog, Providers and Content are required; the rest default.
type Dependencies struct {
	Catalog     *provider.Catalog
	Providers   analyzer.ProviderLookup
	Content     repository.ContentRepository
	Cache       *cache.Store
	Embedder    cache.Embedder
	Scorer      QualityScorer
	Monitor     *monitor.Monitor
	Experiments *experiment.Manager
	Publisher   *observer.EventPublisher
	Speech      provider.SpeechSynthesizer
	Logger      *logrus.Logger
}

// Settings tunes pipeline behaviour
type Settings struct {
	QualityThreshold   float64
	SemanticThreshold  float64
	Selection          strategy.Settings
	Retry              analyzer.RetryPolicy
	CallTimeout        time.Duration
	BatchMaxConcurrent int
	ExpiryInterval     time.Duration
}

// Pipeline is the single owner of the cache, baselines and experiment
// registry. Nothing in it is package-level state.
type Pipeline struct {
	catalog     *provider.Catalog
	providers   analyzer.ProviderLookup
	content     repository.ContentRepository
	cache       *cache.Store
	embedder    cache.Embedder
	scorer      QualityScorer
	monitor     *monitor.Monitor
	experiments *experiment.Manager
	publisher   *observer.EventPublisher
	speech      provider.SpeechSynthesizer
	logger      *logrus.Logger

	selector  *strategy.Selector
	optimizer *optimizer.Optimizer
	executor  *analyzer.Executor
	settings  Settings

	lifecycle sync.Mutex
	started   bool
	disposed  bool
	cancel    context.CancelFunc
	expiry    chan struct{}
}

// NewPipeline wires the components
func NewPipeline(deps Dependencies, settings Settings) (*Pipeline, error) {
	if deps.Catalog == nil || deps.Providers == nil || deps.Content == nil {
		return nil, apperrors.NewConfigurationError("pipeline needs a catalog, providers and a content repository", nil)
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = observer.NewEventPublisher()
	}
	if deps.Scorer == nil {
		deps.Scorer = validation.NewQualityEvaluator()
	}
	if deps.Monitor == nil {
		deps.Monitor = monitor.New(monitor.Options{Publisher: deps.Publisher, Logger: deps.Logger})
	}
	if deps.Experiments == nil {
		deps.Experiments = experiment.NewManager(experiment.Options{Publisher: deps.Publisher, Logger: deps.Logger})
	}

	if settings.QualityThreshold <= 0 {
		settings.QualityThreshold = DefaultQualityThreshold
	}
	if settings.SemanticThreshold <= 0 {
		settings.SemanticThreshold = cache.DefaultThreshold
	}
	if settings.Selection == (strategy.Settings{}) {
		settings.Selection = strategy.DefaultSettings()
	}
	if settings.BatchMaxConcurrent <= 0 {
		settings.BatchMaxConcurrent = DefaultBatchMaxConcurrent
	}
	if settings.ExpiryInterval <= 0 {
		settings.ExpiryInterval = defaultExpiryInterval
	}

	p := &Pipeline{
		catalog:     deps.Catalog,
		providers:   deps.Providers,
		content:     deps.Content,
		cache:       deps.Cache,
		embedder:    deps.Embedder,
		scorer:      deps.Scorer,
		monitor:     deps.Monitor,
		experiments: deps.Experiments,
		publisher:   deps.Publisher,
		speech:      deps.Speech,
		logger:      deps.Logger,
		settings:    settings,
	}
	p.selector = strategy.NewSelector(deps.Catalog, settings.Selection, deps.Experiments, deps.Logger)
	p.optimizer = optimizer.New(deps.Catalog, deps.Cache, deps.Logger)
	p.executor = analyzer.NewExecutor(deps.Providers, analyzer.ExecutorConfig{
		Retry:       settings.Retry,
		CallTimeout: settings.CallTimeout,
		Logger:      deps.Logger,
		OnCall:      p.recordCall,
	})
	return p, nil
}

// Init starts the monitor flush loop and experiment expiry
func (p *Pipeline) Init(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.disposed {
		return apperrors.NewConfigurationError("pipeline has been disposed", nil)
	}
	if p.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.expiry = make(chan struct{})
	p.monitor.Start(runCtx)
	go func(done chan struct{}) {
		defer close(done)
		p.experiments.RunExpiry(runCtx, p.settings.ExpiryInterval)
	}(p.expiry)

	p.started = true
	p.logger.Info("Analysis pipeline initialised")
	return nil
}

// Dispose stops background work, flushes telemetry and releases the cache
// and providers. A disposed pipeline cannot be restarted.
func (p *Pipeline) Dispose(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.disposed {
		return nil
	}
	p.disposed = true

	var errs []error
	if p.started {
		p.cancel()
		select {
		case <-p.expiry:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if err := p.monitor.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := p.providers.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("Analysis pipeline disposed")
	if len(errs) > 0 {
		return apperrors.NewInternalError("pipeline shutdown incomplete", errors.Join(errs...))
	}
	return nil
}

// ValidateContentRef checks a reference without fetching it
func (p *Pipeline) ValidateContentRef(ref string) error {
	return p.content.ValidateContentRef(ref)
}

// StartExperiment registers an A/B test
func (p *Pipeline) StartExperiment(cfg models.ExperimentConfig) (string, error) {
	return p.experiments.Start(cfg)
}

// GetExperimentReport returns the live or archived variant results
func (p *Pipeline) GetExperimentReport(id string) (models.ExperimentReport, error) {
	return p.experiments.Report(id)
}

// ConcludeExperiment ends an experiment now
func (p *Pipeline) ConcludeExperiment(ctx context.Context, id string) ([]models.VariantResult, error) {
	return p.experiments.Conclude(ctx, id)
}

// ActiveExperiments lists running experiment ids
func (p *Pipeline) ActiveExperiments() []string {
	return p.experiments.Active()
}

// GetOptimizationStats reports cache effectiveness, savings and per-operation performance
func (p *Pipeline) GetOptimizationStats() models.OptimizationStats {
	cacheStats := p.optimizer.CacheStats()
	return models.OptimizationStats{
		CacheHitRate:     cacheStats.HitRate,
		Cache:            cacheStats,
		EstimatedSavings: p.optimizer.Savings().StringFixed(6),
		Downgrades:       p.optimizer.Downgrades(),
		PerformanceStats: p.monitor.GetStats("", 0),
	}
}

// Subscribe adds an observer for pipeline events and anomalies
func (p *Pipeline) Subscribe(obs observer.Observer) {
	p.publisher.Subscribe(obs)
}

// Narrate synthesises speech for text produced by an analysis
func (p *Pipeline) Narrate(ctx context.Context, text string, voice provider.VoiceOptions) (*provider.AudioHandle, error) {
	if p.speech == nil {
		return nil, apperrors.NewConfigurationError("speech synthesis is not configured", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text to narrate cannot be empty", nil)
	}
	return p.speech.Synthesize(ctx, text, voice)
}

// recordCall feeds provider_call samples to the monitor
func (p *Pipeline) recordCall(rec analyzer.CallRecord) {
	metrics := monitor.Metrics{Latency: rec.Latency, Error: rec.Err != nil}
	if cfg, ok := p.catalog.ByID(rec.Provider); ok {
		metrics.Cost = cfg.Cost(rec.Usage.Total).InexactFloat64()
	}
	p.monitor.Record(monitor.OpProviderCall, metrics, map[string]string{
		"provider": rec.Provider,
		"purpose":  string(rec.Purpose),
	})
}

func (p *Pipeline) notify(ctx context.Context, event observer.PipelineEvent) {
	p.publisher.NotifyObservers(ctx, event)
}

package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/analyzer"
	"github.com/anime-shed/content-analyzer-go/internal/cache"
	"github.com/anime-shed/content-analyzer-go/internal/config"
	"github.com/anime-shed/content-analyzer-go/internal/experiment"
	"github.com/anime-shed/content-analyzer-go/internal/factory"
	"github.com/anime-shed/content-analyzer-go/internal/logger"
	"github.com/anime-shed/content-analyzer-go/internal/monitor"
	"github.com/anime-shed/content-analyzer-go/internal/observer"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/repository"
	"github.com/anime-shed/content-analyzer-go/internal/service"
	"github.com/anime-shed/content-analyzer-go/internal/strategy"
	"github.com/anime-shed/content-analyzer-go/internal/telemetry"
	"github.com/anime-shed/content-analyzer-go/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	logger   *logrus.Logger
	pipeline *service.Pipeline
	hub      *observer.WebSocketHub
	events   *observer.MetricsObserver
	registry *prometheus.Registry
	amqp     *telemetry.AMQPSink
	handler  http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context) (*Container, error) {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Configure(cfg.LogLevel, cfg.LogFile)
	return Build(ctx, cfg, logger.Logger)
}

// Build wires the dependency graph for cfg
func Build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Container, error) {
	c := &Container{config: cfg, logger: log}

	catalog, err := config.LoadCatalog(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}

	components := factory.NewComponentFactory(factory.ProviderSettings{
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		TesseractLanguage: cfg.TesseractLanguage,
		CallTimeout:       cfg.ProviderCallTimeout,
		StubMissing:       cfg.StubMissingProviders,
	}, factory.StorageSettings{
		FetchTimeout:     cfg.ContentFetchTimeout,
		AzureAccountName: cfg.AzureAccountName,
		AzureAccountKey:  cfg.AzureAccountKey,
	}, log)

	registry, err := components.BuildRegistry(ctx, catalog)
	if err != nil {
		return nil, err
	}

	blobs, err := components.Storage.CreateBlobStorage()
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	content := repository.NewContentRepository(components.Storage.CreateFetcher(), blobs, nil, cfg.ContentFetchTimeout)

	store, err := c.buildCache(ctx)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	var embedder cache.Embedder
	if client, ok := components.Providers.Gemini(); ok && cfg.SemanticCache {
		embedder = cache.NewGenAIEmbedder(client.SDK(), cfg.EmbeddingModel)
	}
	var speech provider.SpeechSynthesizer
	if client, ok := components.Providers.OpenAI(); ok {
		speech = client
	}

	sink, err := c.buildSinks()
	if err != nil {
		_ = registry.Close()
		_ = store.Close()
		return nil, err
	}

	publisher := observer.NewEventPublisher()
	c.events = observer.NewMetricsObserver()
	c.hub = observer.NewWebSocketHub(log, observer.AnomalyDetected, observer.QualityEscalated, observer.ExperimentConcluded)
	publisher.Subscribe(observer.NewLoggingObserver(log))
	publisher.Subscribe(c.events)
	publisher.Subscribe(c.hub)

	mon := monitor.New(monitor.Options{
		Alpha:         cfg.BaselineAlpha,
		FlushInterval: cfg.MetricsFlushInterval,
		Sink:          sink,
		Publisher:     publisher,
		Logger:        log,
	})
	experiments := experiment.NewManager(experiment.Options{
		Sink:      sink,
		Publisher: publisher,
		Logger:    log,
		Seed:      cfg.ExperimentSeed,
	})

	selection := strategy.DefaultSettings()
	selection.LowCostThreshold = cfg.LowCostThreshold
	selection.ComplexityThreshold = cfg.ComplexityThreshold

	retry := analyzer.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.BaseDelay = cfg.RetryBaseDelay
	retry.MaxDelay = cfg.RetryMaxDelay

	c.pipeline, err = service.NewPipeline(service.Dependencies{
		Catalog:     catalog,
		Providers:   registry,
		Content:     content,
		Cache:       store,
		Embedder:    embedder,
		Monitor:     mon,
		Experiments: experiments,
		Publisher:   publisher,
		Speech:      speech,
		Logger:      log,
	}, service.Settings{
		QualityThreshold:   cfg.QualityThreshold,
		SemanticThreshold:  cfg.SemanticThreshold,
		Selection:          selection,
		Retry:              retry,
		CallTimeout:        cfg.ProviderCallTimeout,
		BatchMaxConcurrent: cfg.BatchMaxConcurrent,
	})
	if err != nil {
		_ = registry.Close()
		_ = store.Close()
		return nil, err
	}

	c.handler = transport.NewHandler(c.pipeline, cfg, transport.Extras{
		Hub:      c.hub,
		Events:   c.events,
		Gatherer: c.registry,
		Logger:   log,
	})

	log.WithFields(logrus.Fields{
		"providers":      len(catalog.All()),
		"semantic_cache": embedder != nil,
		"blob_storage":   blobs != nil,
		"amqp":           c.amqp != nil,
		"speech":         speech != nil,
	}).Info("Container initialised")
	return c, nil
}

func (c *Container) buildCache(ctx context.Context) (*cache.Store, error) {
	opts := cache.Options{Size: c.config.CacheSize, TTL: c.config.CacheTTL, Logger: c.logger}
	if c.config.CacheDBPath != "" {
		backing, err := cache.OpenSQLite(ctx, c.config.CacheDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		if n, err := backing.PurgeExpired(ctx, time.Now()); err != nil {
			c.logger.WithError(err).Warn("Failed to purge expired cache entries")
		} else if n > 0 {
			c.logger.WithField("purged", n).Info("Purged expired cache entries")
		}
		opts.Backing = backing
	}
	return cache.New(opts), nil
}

func (c *Container) buildSinks() (telemetry.Sink, error) {
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	promSink, err := telemetry.NewPrometheusSink(c.registry)
	if err != nil {
		return nil, err
	}
	sinks := telemetry.MultiSink{telemetry.NewLogSink(c.logger), promSink}

	if c.config.AMQPURL != "" {
		amqpSink, err := telemetry.NewAMQPSink(c.config.AMQPURL, c.config.AMQPExchange, c.logger)
		if err != nil {
			// Without a broker telemetry still reaches the log and prometheus sinks
			c.logger.WithError(err).Warn("AMQP telemetry sink unavailable")
		} else {
			c.amqp = amqpSink
			sinks = append(sinks, amqpSink)
		}
	}
	return sinks, nil
}

// Init starts background work
func (c *Container) Init(ctx context.Context) error {
	return c.pipeline.Init(ctx)
}

// Close disposes the pipeline and releases transport resources
func (c *Container) Close(ctx context.Context) error {
	err := c.pipeline.Dispose(ctx)
	c.hub.Close()
	if c.amqp != nil {
		err = errors.Join(err, c.amqp.Close())
	}
	return err
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Pipeline returns the analysis pipeline
func (c *Container) Pipeline() *service.Pipeline {
	return c.pipeline
}

// Logger returns the application logger
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

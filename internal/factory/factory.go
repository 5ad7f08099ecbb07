package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/provider/gemini"
	"github.com/anime-shed/content-analyzer-go/internal/provider/ocr"
	"github.com/anime-shed/content-analyzer-go/internal/provider/openai"
	"github.com/anime-shed/content-analyzer-go/internal/provider/stub"
	"github.com/anime-shed/content-analyzer-go/internal/storage"
)

// ProviderSettings carries the credentials the adapters need
type ProviderSettings struct {
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	GeminiAPIKey      string
	TesseractLanguage string
	CallTimeout       time.Duration
	// StubMissing replaces adapters whose credentials are absent with the stub adapter
	StubMissing bool
}

// StorageSettings configures the content store backends
type StorageSettings struct {
	FetchTimeout     time.Duration
	MaxContentBytes  int64
	AzureAccountName string
	AzureAccountKey  string
}

// ProviderFactory creates analysis provider adapters
type ProviderFactory interface {
	CreateProvider(ctx context.Context, cfg provider.Config) (provider.AnalysisProvider, error)
}

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateFetcher() storage.ContentFetcher
	CreateBlobStorage() (storage.BlobStorage, error)
}

// ClientFactory implements ProviderFactory. Catalog entries of the same kind share one SDK client.
type ClientFactory struct {
	settings ProviderSettings
	logger   *logrus.Logger

	mu     sync.Mutex
	openai *openai.Client
	gemini *gemini.Client
	ocr    *ocr.Client
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(settings ProviderSettings, logger *logrus.Logger) *ClientFactory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ClientFactory{settings: settings, logger: logger}
}

// CreateProvider creates an adapter based on the kind of the catalog entry
func (f *ClientFactory) CreateProvider(ctx context.Context, cfg provider.Config) (provider.AnalysisProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch cfg.Kind {
	case provider.KindOpenAI:
		if f.openai == nil {
			client, err := openai.New(openai.Config{
				APIKey:  f.settings.OpenAIAPIKey,
				BaseURL: f.settings.OpenAIBaseURL,
				Timeout: f.settings.CallTimeout,
			})
			if err != nil {
				return f.fallback(cfg, err)
			}
			f.openai = client
		}
		return f.openai, nil
	case provider.KindGemini:
		if f.gemini == nil {
			client, err := gemini.New(ctx, f.settings.GeminiAPIKey)
			if err != nil {
				return f.fallback(cfg, err)
			}
			f.gemini = client
		}
		return f.gemini, nil
	case provider.KindOCR:
		if f.ocr == nil {
			f.ocr = ocr.New(f.settings.TesseractLanguage)
		}
		return f.ocr, nil
	case provider.KindStub:
		return stub.New(cfg.ID), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Kind)
	}
}

func (f *ClientFactory) fallback(cfg provider.Config, err error) (provider.AnalysisProvider, error) {
	if !f.settings.StubMissing {
		return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
	}
	f.logger.WithError(err).WithField("provider", cfg.ID).Warn("Provider credentials missing, serving it from the stub adapter")
	return stub.New(cfg.ID), nil
}

// OpenAI returns the shared OpenAI client once one has been created
func (f *ClientFactory) OpenAI() (*openai.Client, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openai, f.openai != nil
}

// Gemini returns the shared Gemini client once one has been created
func (f *ClientFactory) Gemini() (*gemini.Client, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gemini, f.gemini != nil
}

// storageFactory implements StorageFactory
type storageFactory struct {
	settings StorageSettings
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(settings StorageSettings) StorageFactory {
	return &storageFactory{settings: settings}
}

// CreateFetcher creates the HTTP content fetcher
func (f *storageFactory) CreateFetcher() storage.ContentFetcher {
	return storage.NewHTTPContentFetcher(storage.HTTPOptions{
		Timeout:  f.settings.FetchTimeout,
		MaxBytes: f.settings.MaxContentBytes,
	})
}

// CreateBlobStorage creates the Azure blob client. It returns nil when no account is configured.
func (f *storageFactory) CreateBlobStorage() (storage.BlobStorage, error) {
	if f.settings.AzureAccountName == "" {
		return nil, nil
	}
	return storage.NewAzureStorage(f.settings.AzureAccountName, f.settings.AzureAccountKey)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	Providers *ClientFactory
	Storage   StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(providers ProviderSettings, store StorageSettings, logger *logrus.Logger) *ComponentFactory {
	return &ComponentFactory{
		Providers: NewProviderFactory(providers, logger),
		Storage:   NewStorageFactory(store),
	}
}

// BuildRegistry creates an adapter for every catalog entry
func (f *ComponentFactory) BuildRegistry(ctx context.Context, catalog *provider.Catalog) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for _, cfg := range catalog.All() {
		adapter, err := f.Providers.CreateProvider(ctx, cfg)
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
		registry.Register(cfg.ID, adapter)
	}
	return registry, nil
}

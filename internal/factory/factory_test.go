package factory

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/content-analyzer-go/internal/config"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/internal/provider/stub"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestCreateProvider(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		settings ProviderSettings
		cfg      provider.Config
		wantStub bool
		wantErr  bool
	}{
		{"stub kind", ProviderSettings{}, provider.Config{ID: "s", Kind: provider.KindStub}, true, false},
		{"openai without key", ProviderSettings{}, provider.Config{ID: "o", Kind: provider.KindOpenAI}, false, true},
		{"gemini without key", ProviderSettings{}, provider.Config{ID: "g", Kind: provider.KindGemini}, false, true},
		{"openai without key falls back", ProviderSettings{StubMissing: true}, provider.Config{ID: "o", Kind: provider.KindOpenAI}, true, false},
		{"unknown kind", ProviderSettings{StubMissing: true}, provider.Config{ID: "x", Kind: "carrier-pigeon"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewProviderFactory(tt.settings, quietLogger())
			adapter, err := f.CreateProvider(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, isStub := adapter.(*stub.Provider)
			assert.Equal(t, tt.wantStub, isStub)
			assert.Equal(t, tt.cfg.ID, adapter.Name())
		})
	}
}

func TestCreateProvider_SharesClientsPerKind(t *testing.T) {
	f := NewProviderFactory(ProviderSettings{OpenAIAPIKey: "sk-test", TesseractLanguage: "eng"}, quietLogger())
	ctx := context.Background()

	a, err := f.CreateProvider(ctx, provider.Config{ID: "gpt-a", Kind: provider.KindOpenAI})
	require.NoError(t, err)
	b, err := f.CreateProvider(ctx, provider.Config{ID: "gpt-b", Kind: provider.KindOpenAI})
	require.NoError(t, err)
	assert.Same(t, a, b)

	client, ok := f.OpenAI()
	assert.True(t, ok)
	assert.Same(t, client, a)

	_, ok = f.Gemini()
	assert.False(t, ok)
}

func TestBuildRegistry(t *testing.T) {
	catalog, err := config.ParseCatalog([]byte(config.DefaultCatalogYAML))
	require.NoError(t, err)

	f := NewComponentFactory(ProviderSettings{StubMissing: true}, StorageSettings{}, quietLogger())
	registry, err := f.BuildRegistry(context.Background(), catalog)
	require.NoError(t, err)

	for _, cfg := range catalog.All() {
		adapter, err := registry.Get(cfg.ID)
		require.NoError(t, err, cfg.ID)
		assert.NotNil(t, adapter)
	}

	strict := NewComponentFactory(ProviderSettings{}, StorageSettings{}, quietLogger())
	_, err = strict.BuildRegistry(context.Background(), catalog)
	assert.Error(t, err)
}

func TestStorageFactory(t *testing.T) {
	f := NewStorageFactory(StorageSettings{})
	assert.NotNil(t, f.CreateFetcher())

	blobs, err := f.CreateBlobStorage()
	require.NoError(t, err)
	assert.Nil(t, blobs)
}

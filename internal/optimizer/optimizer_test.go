package optimizer

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/content-analyzer-go/internal/cache"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

func testCatalog(t *testing.T) *provider.Catalog {
	t.Helper()
	catalog, err := provider.NewCatalog([]provider.Config{
		{ID: "top", Tier: 0, CostPer1KTokens: decimal.RequireFromString("0.01"), Capabilities: []string{"technical"}},
		{ID: "premium", Tier: 1, CostPer1KTokens: decimal.RequireFromString("0.005"), Capabilities: []string{"comprehensive"}},
		{ID: "economy", Tier: 2, CostPer1KTokens: decimal.RequireFromString("0.0006"), Capabilities: []string{"detailed"}},
		{ID: "local", Tier: 3, CostPer1KTokens: decimal.Zero, Capabilities: []string{"basic"}},
	}, "premium", "economy")
	require.NoError(t, err)
	return catalog
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestOptimize_NoDowngradeKeepsCandidate(t *testing.T) {
	catalog := testCatalog(t)
	o := New(catalog, nil, quietLogger())

	for _, level := range []models.CompressionLevel{models.CompressionNone, models.CompressionLow, models.CompressionMedium, models.CompressionHigh} {
		for _, candidate := range catalog.All() {
			res := o.Optimize("describe the image", candidate, Options{
				AllowDowngrade:   false,
				CompressionLevel: level,
				DetailLevel:      models.DetailBasic,
			})
			assert.Equal(t, candidate.ID, res.RecommendedModel.ID, "level=%s candidate=%s", level, candidate.ID)
			assert.False(t, res.Downgraded)
		}
	}
	assert.Equal(t, int64(0), o.Downgrades())
}

func TestOptimize_HighCompressionNeverCostsMore(t *testing.T) {
	catalog := testCatalog(t)
	o := New(catalog, nil, quietLogger())

	for _, detail := range []models.DetailLevel{models.DetailBasic, models.DetailDetailed, models.DetailTechnical} {
		for _, candidate := range catalog.All() {
			res := o.Optimize("describe the image", candidate, Options{
				AllowDowngrade:   true,
				CompressionLevel: models.CompressionHigh,
				DetailLevel:      detail,
				OutputTokens:     200,
			})
			assert.True(t, res.RecommendedModel.CostPer1KTokens.LessThanOrEqual(candidate.CostPer1KTokens))
			assert.True(t, res.RecommendedModel.Covers(detail) || res.RecommendedModel.ID == candidate.ID)
			assert.False(t, res.EstimatedSavings.IsNegative())
		}
	}
}

func TestOptimize_DowngradeSteps(t *testing.T) {
	catalog := testCatalog(t)
	top := catalog.Top()

	tests := []struct {
		level  models.CompressionLevel
		detail models.DetailLevel
		want   string
	}{
		{models.CompressionNone, models.DetailBasic, "top"},
		{models.CompressionLow, models.DetailBasic, "premium"},
		{models.CompressionMedium, models.DetailBasic, "economy"},
		{models.CompressionHigh, models.DetailBasic, "local"},
		{models.CompressionHigh, models.DetailDetailed, "economy"},
		{models.CompressionHigh, models.DetailTechnical, "top"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+string(tt.detail), func(t *testing.T) {
			o := New(catalog, nil, quietLogger())
			res := o.Optimize("describe", top, Options{AllowDowngrade: true, CompressionLevel: tt.level, DetailLevel: tt.detail})
			assert.Equal(t, tt.want, res.RecommendedModel.ID)
		})
	}
}

func TestOptimize_SavingsArithmetic(t *testing.T) {
	catalog := testCatalog(t)
	o := New(catalog, nil, quietLogger())

	prompt := strings.Repeat("a", 4000) // 1000 tokens
	res := o.Optimize(prompt, catalog.Top(), Options{
		AllowDowngrade:   true,
		CompressionLevel: models.CompressionLow,
		DetailLevel:      models.DetailBasic,
		OutputTokens:     1000,
	})

	// top: 2000 tokens at 0.01/1k = 0.02; premium: 2000 tokens at 0.005/1k = 0.01
	assert.Equal(t, "premium", res.RecommendedModel.ID)
	assert.True(t, res.EstimatedSavings.Equal(decimal.RequireFromString("0.01")), "got %s", res.EstimatedSavings)
	assert.True(t, o.Savings().Equal(res.EstimatedSavings))
	assert.Equal(t, int64(1), o.Downgrades())
}

func TestOptimizer_CacheConsultation(t *testing.T) {
	catalog := testCatalog(t)
	store := cache.New(cache.Options{Size: 10, TTL: time.Hour, Logger: quietLogger()})
	o := New(catalog, store, quietLogger())
	ctx := context.Background()

	_, ok := o.CheckCache(ctx, "k", "h", cache.LookupOptions{})
	assert.False(t, ok)

	result := models.AnalysisResult{Success: true, Provider: "top", TokenUsage: models.TokenUsage{Total: 1000}}
	o.Remember(ctx, "k", "h", "opts", result, nil)

	entry, ok := o.CheckCache(ctx, "k", "h", cache.LookupOptions{})
	require.True(t, ok)
	assert.Equal(t, "top", entry.Result.Provider)
	assert.True(t, o.Savings().Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, int64(1), o.CacheStats().Hits)
}

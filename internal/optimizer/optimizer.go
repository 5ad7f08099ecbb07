package optimizer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/content-analyzer-go/internal/cache"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Options shapes a single optimization
type Options struct {
	MaxTokens        int
	AllowDowngrade   bool
	CompressionLevel models.CompressionLevel
	DetailLevel      models.DetailLevel
	// OutputTokens is the expected completion size, priced into the savings estimate
	OutputTokens int
}

// Result is the outcome of Optimize
type Result struct {
	OptimizedPrompt  string
	RecommendedModel provider.Config
	EstimatedSavings decimal.Decimal
	OriginalTokens   int
	OptimizedTokens  int
	Downgraded       bool
}

// Optimizer shapes prompts and model choice for cost and keeps running savings totals
type Optimizer struct {
	catalog *provider.Catalog
	cache   *cache.Store
	logger  *logrus.Logger

	mu         sync.Mutex
	savings    decimal.Decimal
	downgrades atomic.Int64
}

// New creates an Optimizer. store may be nil, in which case cache consultation always misses.
func New(catalog *provider.Catalog, store *cache.Store, logger *logrus.Logger) *Optimizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Optimizer{catalog: catalog, cache: store, logger: logger, savings: decimal.Zero}
}

// downgradeSteps is how many tiers below the candidate a compression level may reach
func downgradeSteps(level models.CompressionLevel) int {
	switch level {
	case models.CompressionLow:
		return 1
	case models.CompressionMedium:
		return 2
	case models.CompressionHigh:
		return -1
	default:
		return 0
	}
}

// Optimize compresses the prompt and, when allowed, recommends a cheaper provider that
// still covers the requested detail level. Without AllowDowngrade the candidate is kept.
func (o *Optimizer) Optimize(prompt string, candidate provider.Config, opts Options) Result {
	optimized := Compress(prompt, opts.CompressionLevel, opts.MaxTokens)
	res := Result{
		OptimizedPrompt:  optimized,
		RecommendedModel: candidate,
		OriginalTokens:   EstimateTokens(prompt),
		OptimizedTokens:  EstimateTokens(optimized),
	}

	if opts.AllowDowngrade {
		res.RecommendedModel = o.downgrade(candidate, opts)
		res.Downgraded = res.RecommendedModel.ID != candidate.ID
	}

	output := int64(opts.OutputTokens)
	baseline := candidate.Cost(int64(res.OriginalTokens) + output)
	projected := res.RecommendedModel.Cost(int64(res.OptimizedTokens) + output)
	res.EstimatedSavings = baseline.Sub(projected)

	if res.Downgraded {
		o.downgrades.Add(1)
		o.logger.WithFields(logrus.Fields{
			"operation": "optimize",
			"from":      candidate.ID,
			"to":        res.RecommendedModel.ID,
			"savings":   res.EstimatedSavings.StringFixed(6),
		}).Debug("Downgraded provider")
	}
	o.addSavings(res.EstimatedSavings)
	return res
}

func (o *Optimizer) downgrade(candidate provider.Config, opts Options) provider.Config {
	if o.catalog == nil {
		return candidate
	}
	steps := downgradeSteps(opts.CompressionLevel)
	best := candidate
	current := candidate
	for walked := 0; steps < 0 || walked < steps; walked++ {
		next, ok := o.catalog.NextLower(current.Tier)
		if !ok {
			break
		}
		current = next
		if next.Covers(opts.DetailLevel) && next.CostPer1KTokens.LessThanOrEqual(candidate.CostPer1KTokens) {
			best = next
		}
	}
	return best
}

// CheckCache consults the cache store on behalf of the pipeline. A hit credits the
// avoided spend to the savings total.
func (o *Optimizer) CheckCache(ctx context.Context, key, hash string, q cache.LookupOptions) (*cache.Entry, bool) {
	if o.cache == nil {
		return nil, false
	}
	entry, ok := o.cache.Lookup(ctx, key, hash, q)
	if !ok {
		return nil, false
	}
	if o.catalog != nil {
		if cfg, found := o.catalog.ByID(entry.Result.Provider); found {
			o.addSavings(cfg.Cost(entry.TokenCost))
		}
	}
	return entry, true
}

// Remember stores a result whose tokens were actually spent
func (o *Optimizer) Remember(ctx context.Context, key, hash, optionsKey string, result models.AnalysisResult, embedding []float32) {
	if o.cache == nil {
		return
	}
	o.cache.Store(ctx, key, hash, optionsKey, result, result.TokenUsage.Total, embedding)
}

func (o *Optimizer) addSavings(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	o.mu.Lock()
	o.savings = o.savings.Add(amount)
	o.mu.Unlock()
}

// Savings is the accumulated estimated spend avoided
func (o *Optimizer) Savings() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.savings
}

// Downgrades counts optimizations that recommended a cheaper provider
func (o *Optimizer) Downgrades() int64 { return o.downgrades.Load() }

// CacheStats proxies the store counters
func (o *Optimizer) CacheStats() models.CacheStats {
	if o.cache == nil {
		return models.CacheStats{}
	}
	return o.cache.Stats()
}

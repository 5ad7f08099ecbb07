package strategy

import "github.com/anime-shed/content-analyzer-go/internal/provider"

// Strategy names reported in a Decision
const (
	StrategyOpenAI = "openai"
	StrategyAWS    = "aws"
	StrategyHybrid = "hybrid"
)

// AnalysisStrategy defines the interface for different provider selection strategies
type AnalysisStrategy interface {
	Resolve(catalog *provider.Catalog, complexity float64) provider.Config
	GetStrategyName() string
}

// OpenAIStrategy always routes to the premium provider
type OpenAIStrategy struct{}

// NewOpenAIStrategy creates a new premium strategy
func NewOpenAIStrategy() AnalysisStrategy {
	return &OpenAIStrategy{}
}

// Resolve returns the premium provider
func (s *OpenAIStrategy) Resolve(catalog *provider.Catalog, _ float64) provider.Config {
	return catalog.Premium()
}

// GetStrategyName returns the strategy name
func (s *OpenAIStrategy) GetStrategyName() string {
	return StrategyOpenAI
}

// AWSStrategy always routes to the economy provider
type AWSStrategy struct{}

// NewAWSStrategy creates a new economy strategy
func NewAWSStrategy() AnalysisStrategy {
	return &AWSStrategy{}
}

// Resolve returns the economy provider
func (s *AWSStrategy) Resolve(catalog *provider.Catalog, _ float64) provider.Config {
	return catalog.Economy()
}

// GetStrategyName returns the strategy name
func (s *AWSStrategy) GetStrategyName() string {
	return StrategyAWS
}

// HybridStrategy routes on the complexity score
type HybridStrategy struct {
	threshold float64
}

// NewHybridStrategy creates a new hybrid strategy. Complexity strictly above threshold goes premium.
func NewHybridStrategy(threshold float64) AnalysisStrategy {
	return &HybridStrategy{threshold: threshold}
}

// Resolve picks premium for complex requests, economy otherwise
func (s *HybridStrategy) Resolve(catalog *provider.Catalog, complexity float64) provider.Config {
	if complexity > s.threshold {
		return catalog.Premium()
	}
	return catalog.Economy()
}

// GetStrategyName returns the strategy name
func (s *HybridStrategy) GetStrategyName() string {
	return StrategyHybrid
}

// strategyFor names the strategy that would have produced cfg
func strategyFor(catalog *provider.Catalog, cfg provider.Config) string {
	if cfg.Tier <= catalog.Premium().Tier {
		return StrategyOpenAI
	}
	return StrategyAWS
}

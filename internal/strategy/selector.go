package strategy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// DecisionPoint is the experiment decision point served by the selector
const DecisionPoint = "provider_selection"

// Variant config keys understood by the selector
const (
	VariantKeyStrategy = "strategy"
	VariantKeyProvider = "provider"
)

const (
	baseComplexity          = 0.5
	contextComplexity       = 0.2
	technicalComplexity     = 0.3
	comprehensiveComplexity = 0.05
)

// VariantSelector is the slice of the experiment framework the selector needs
type VariantSelector interface {
	SelectVariant(experimentID string) (models.Variant, error)
	ActiveFor(decisionPoint string) (string, bool)
}

// Constraints are the caller limits that steer selection
type Constraints struct {
	Override     string
	CostCeiling  float64
	QualityFloor float64
	ExperimentID string
}

// ConstraintsFrom extracts selection constraints from analysis options
func ConstraintsFrom(opts models.AnalysisOptions) Constraints {
	return Constraints{
		Override:     strings.TrimSpace(opts.ProviderOverride),
		CostCeiling:  opts.CostCeiling,
		QualityFloor: opts.QualityFloor,
		ExperimentID: opts.ExperimentID,
	}
}

// Decision is the outcome of Select
type Decision struct {
	Strategy     string
	Provider     provider.Config
	Complexity   float64
	Reason       string
	ExperimentID string
	VariantID    string
}

// Settings tune the selector thresholds
type Settings struct {
	LowCostThreshold    float64
	ComplexityThreshold float64
	PremiumQualityFloor float64
}

// DefaultSettings returns the standard thresholds
func DefaultSettings() Settings {
	return Settings{LowCostThreshold: 0.01, ComplexityThreshold: 0.7, PremiumQualityFloor: 0.9}
}

// Selector chooses a provider for each request
type Selector struct {
	catalog     *provider.Catalog
	settings    Settings
	experiments VariantSelector
	strategies  map[string]AnalysisStrategy
	logger      *logrus.Logger
}

// NewSelector creates a Selector. experiments may be nil.
func NewSelector(catalog *provider.Catalog, settings Settings, experiments VariantSelector, logger *logrus.Logger) *Selector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	strategies := map[string]AnalysisStrategy{}
	for _, s := range []AnalysisStrategy{
		NewOpenAIStrategy(),
		NewAWSStrategy(),
		NewHybridStrategy(settings.ComplexityThreshold),
	} {
		strategies[s.GetStrategyName()] = s
	}
	return &Selector{
		catalog:     catalog,
		settings:    settings,
		experiments: experiments,
		strategies:  strategies,
		logger:      logger,
	}
}

// ComplexityScore estimates how much reasoning a request needs, in [0,1]
func ComplexityScore(opts models.AnalysisOptions) float64 {
	score := baseComplexity
	if opts.HasContext() {
		score += contextComplexity
	}
	switch models.DetailLevel(strings.ToLower(string(opts.DetailLevel))) {
	case models.DetailTechnical:
		score += technicalComplexity
	case models.DetailComprehensive:
		score += comprehensiveComplexity
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Select applies the decision order: override, active experiment variant, cost ceiling,
// quality floor, then the hybrid complexity rule.
func (s *Selector) Select(opts models.AnalysisOptions, c Constraints) (Decision, error) {
	complexity := ComplexityScore(opts)

	if c.Override != "" {
		return s.fromOverride(c.Override, complexity)
	}

	if decision, ok := s.fromExperiment(c.ExperimentID, complexity); ok {
		return decision, nil
	}

	if c.CostCeiling > 0 && c.CostCeiling < s.settings.LowCostThreshold {
		cheapest := s.catalog.Cheapest()
		return Decision{
			Strategy:   StrategyAWS,
			Provider:   cheapest,
			Complexity: complexity,
			Reason:     fmt.Sprintf("cost ceiling %.4f below low-cost threshold", c.CostCeiling),
		}, nil
	}

	if c.QualityFloor > s.settings.PremiumQualityFloor {
		return s.withStrategy(StrategyOpenAI, complexity, fmt.Sprintf("quality floor %.2f requires premium", c.QualityFloor)), nil
	}

	return s.withStrategy(StrategyHybrid, complexity, fmt.Sprintf("complexity %.2f", complexity)), nil
}

func (s *Selector) withStrategy(name string, complexity float64, reason string) Decision {
	strategy := s.strategies[name]
	return Decision{
		Strategy:   strategy.GetStrategyName(),
		Provider:   strategy.Resolve(s.catalog, complexity),
		Complexity: complexity,
		Reason:     reason,
	}
}

func (s *Selector) fromOverride(override string, complexity float64) (Decision, error) {
	if _, ok := s.strategies[strings.ToLower(override)]; ok {
		return s.withStrategy(strings.ToLower(override), complexity, "caller override"), nil
	}
	if cfg, ok := s.catalog.ByID(override); ok {
		return Decision{
			Strategy:   strategyFor(s.catalog, cfg),
			Provider:   cfg,
			Complexity: complexity,
			Reason:     "caller override",
		}, nil
	}
	return Decision{}, apperrors.NewValidationError(fmt.Sprintf("unknown provider override %q", override), nil)
}

// fromExperiment resolves a variant when an experiment is active for this request.
// A variant that names nothing usable falls through to the regular rules.
func (s *Selector) fromExperiment(experimentID string, complexity float64) (Decision, bool) {
	if s.experiments == nil {
		return Decision{}, false
	}
	if experimentID == "" {
		id, ok := s.experiments.ActiveFor(DecisionPoint)
		if !ok {
			return Decision{}, false
		}
		experimentID = id
	}

	variant, err := s.experiments.SelectVariant(experimentID)
	if err != nil {
		s.logger.WithError(err).WithField("experiment_id", experimentID).Debug("No variant selected")
		return Decision{}, false
	}

	var decision Decision
	if id := variant.Config[VariantKeyProvider]; id != "" {
		cfg, ok := s.catalog.ByID(id)
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"experiment_id": experimentID,
				"variant_id":    variant.ID,
				"provider":      id,
			}).Warn("Experiment variant names an unknown provider")
			return Decision{}, false
		}
		decision = Decision{Strategy: strategyFor(s.catalog, cfg), Provider: cfg, Complexity: complexity}
	} else if name := strings.ToLower(variant.Config[VariantKeyStrategy]); name != "" {
		if _, ok := s.strategies[name]; !ok {
			s.logger.WithFields(logrus.Fields{
				"experiment_id": experimentID,
				"variant_id":    variant.ID,
				"strategy":      name,
			}).Warn("Experiment variant names an unknown strategy")
			return Decision{}, false
		}
		decision = s.withStrategy(name, complexity, "")
	} else {
		return Decision{}, false
	}

	decision.Reason = fmt.Sprintf("experiment %s variant %s", experimentID, variant.ID)
	decision.ExperimentID = experimentID
	decision.VariantID = variant.ID
	return decision, true
}

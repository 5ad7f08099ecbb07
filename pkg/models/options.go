package models

import "strings"

// DetailLevel orders how much depth a caller asks for
type DetailLevel string

const (
	DetailBasic         DetailLevel = "basic"
	DetailStandard      DetailLevel = "standard"
	DetailDetailed      DetailLevel = "detailed"
	DetailComprehensive DetailLevel = "comprehensive"
	DetailTechnical     DetailLevel = "technical"
)

var detailRank = map[DetailLevel]int{
	DetailBasic:         0,
	DetailStandard:      1,
	DetailDetailed:      2,
	DetailComprehensive: 3,
	DetailTechnical:     4,
}

// Rank returns the position of the level in the ordering; unknown levels rank as standard
func (d DetailLevel) Rank() int {
	if r, ok := detailRank[DetailLevel(strings.ToLower(string(d)))]; ok {
		return r
	}
	return detailRank[DetailStandard]
}

// CompressionLevel controls prompt compression and model downgrade aggressiveness
type CompressionLevel string

const (
	CompressionNone   CompressionLevel = "none"
	CompressionLow    CompressionLevel = "low"
	CompressionMedium CompressionLevel = "medium"
	CompressionHigh   CompressionLevel = "high"
)

// AnalysisOptions configures a single analysis
type AnalysisOptions struct {
	// What is being analysed
	ContentType    string      `json:"content_type,omitempty"`
	DetailLevel    DetailLevel `json:"detail_level,omitempty"`
	TargetLanguage string      `json:"target_language,omitempty"`
	Context        string      `json:"context,omitempty"`

	// Constraints
	QualityFloor     float64          `json:"quality_floor,omitempty"`
	CostCeiling      float64          `json:"cost_ceiling,omitempty"`
	ProviderOverride string           `json:"provider_override,omitempty"`
	AllowDowngrade   bool             `json:"allow_downgrade,omitempty"`
	CompressionLevel CompressionLevel `json:"compression_level,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`

	// Quality criteria
	RequiredElements  []string `json:"required_elements,omitempty"`
	ForbiddenPatterns []string `json:"forbidden_patterns,omitempty"`
	ReferenceText     string   `json:"reference_text,omitempty"`

	// Routing
	ExperimentID     string `json:"experiment_id,omitempty"`
	UseSemanticCache *bool  `json:"use_semantic_cache,omitempty"`
}

// DefaultOptions returns general-purpose analysis options
func DefaultOptions() AnalysisOptions {
	return AnalysisOptions{
		ContentType:      "general",
		DetailLevel:      DetailStandard,
		TargetLanguage:   "en",
		CompressionLevel: CompressionNone,
		MaxTokens:        1024,
	}
}

// ProductOptions returns options for product catalogue content
func ProductOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.ContentType = "product"
	opts.DetailLevel = DetailDetailed
	opts.QualityFloor = 0.8
	return opts
}

// AccessibilityOptions favours precise alt text over marketing copy
func AccessibilityOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.ContentType = "accessibility"
	opts.DetailLevel = DetailComprehensive
	opts.QualityFloor = 0.85
	opts.ForbiddenPatterns = []string{`(?i)\bimage of\b`, `(?i)\bpicture of\b`}
	return opts
}

// FastOptions trades depth for cost
func FastOptions() AnalysisOptions {
	opts := DefaultOptions()
	opts.DetailLevel = DetailBasic
	opts.AllowDowngrade = true
	opts.CompressionLevel = CompressionHigh
	opts.MaxTokens = 512
	return opts
}

// WithContext attaches caller-supplied context
func (opts AnalysisOptions) WithContext(context string) AnalysisOptions {
	opts.Context = context
	return opts
}

// WithQualityFloor sets the minimum acceptable quality
func (opts AnalysisOptions) WithQualityFloor(floor float64) AnalysisOptions {
	opts.QualityFloor = floor
	return opts
}

// WithCostCeiling sets the maximum spend per request
func (opts AnalysisOptions) WithCostCeiling(ceiling float64) AnalysisOptions {
	opts.CostCeiling = ceiling
	return opts
}

// WithProvider pins a strategy name or provider id
func (opts AnalysisOptions) WithProvider(override string) AnalysisOptions {
	opts.ProviderOverride = override
	return opts
}

// WithExperiment routes the request through an experiment
func (opts AnalysisOptions) WithExperiment(id string) AnalysisOptions {
	opts.ExperimentID = id
	return opts
}

// WithoutSemanticCache restricts cache lookups to exact keys
func (opts AnalysisOptions) WithoutSemanticCache() AnalysisOptions {
	off := false
	opts.UseSemanticCache = &off
	return opts
}

// SemanticCacheEnabled reports whether semantic lookup is allowed for this request
func (opts AnalysisOptions) SemanticCacheEnabled() bool {
	return opts.UseSemanticCache == nil || *opts.UseSemanticCache
}

// HasContext reports whether the caller supplied context about the content
func (opts AnalysisOptions) HasContext() bool {
	if strings.TrimSpace(opts.Context) != "" {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(opts.ContentType))
	return ct != "" && ct != "general"
}

package models

import (
	"maps"
	"slices"
	"time"
)

// AnalysisRequest is created per call and discarded once a result is produced or cached
type AnalysisRequest struct {
	ContentRef    string          `json:"content_ref"`
	ContentHash   string          `json:"content_hash,omitempty"`
	Options       AnalysisOptions `json:"options"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// AnalysisResult is the single authoritative answer for an AnalysisRequest.
// A cached result is returned exactly as it was stored.
type AnalysisResult struct {
	Success bool `json:"success"`

	// Text fields
	Description string `json:"description,omitempty"`
	AltText     string `json:"alt_text,omitempty"`
	SEOText     string `json:"seo_text,omitempty"`

	Metadata ContentMetadata `json:"metadata"`

	Confidence    float64        `json:"confidence"`
	QualityScore  float64        `json:"quality_score"`
	QualityScores *QualityScores `json:"quality_scores,omitempty"`
	TokenUsage    TokenUsage     `json:"token_usage"`

	// Provider that produced the result
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Tier     int    `json:"tier"`

	Escalated      bool     `json:"escalated"`
	BelowThreshold bool     `json:"below_threshold"`
	Error          *Failure `json:"error,omitempty"`

	Timestamp         string  `json:"timestamp"`
	ProcessingTimeSec float64 `json:"processing_time_sec"`
}

// Clone returns a copy that shares no slices, maps or pointers with r
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	if r.QualityScores != nil {
		scores := *r.QualityScores
		out.QualityScores = &scores
	}
	if r.Error != nil {
		failure := *r.Error
		out.Error = &failure
	}
	out.Metadata.VisualElements = slices.Clone(r.Metadata.VisualElements)
	out.Metadata.Colors = slices.Clone(r.Metadata.Colors)
	out.Metadata.Attributes = maps.Clone(r.Metadata.Attributes)
	return out
}

// ContentMetadata holds the structured part of an analysis
type ContentMetadata struct {
	VisualElements []string          `json:"visual_elements,omitempty"`
	Colors         []string          `json:"colors,omitempty"`
	Composition    string            `json:"composition,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// QualityScores are the four evaluator sub-scores, each in [0,1]
type QualityScores struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Consistency  float64 `json:"consistency"`
}

// TokenUsage aggregates provider token counts
type TokenUsage struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// Add returns the sum of two usages
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:     u.Prompt + other.Prompt,
		Completion: u.Completion + other.Completion,
		Total:      u.Total + other.Total,
	}
}

// Failure is the only error shape that crosses the public surface
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailedResult builds the normalised failure result
func FailedResult(failure Failure) *AnalysisResult {
	return &AnalysisResult{
		Success:   false,
		Error:     &failure,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// PerformanceSample is an append-only, time-stamped measurement of one operation
type PerformanceSample struct {
	Operation       string            `json:"operation"`
	Latency         time.Duration     `json:"latency"`
	Throughput      float64           `json:"throughput"`
	Error           bool              `json:"error"`
	TokenEfficiency float64           `json:"token_efficiency"`
	Quality         float64           `json:"quality"`
	Cost            float64           `json:"cost"`
	Timestamp       time.Time         `json:"timestamp"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

package models

import "time"

// Variant is one configuration alternative under test
type Variant struct {
	ID     string            `json:"id"`
	Config map[string]string `json:"config,omitempty"`
	Weight float64           `json:"weight"`
}

// ExperimentConfig describes an A/B test. The first metric is the primary one.
type ExperimentConfig struct {
	ID            string        `json:"id,omitempty"`
	Name          string        `json:"name"`
	DecisionPoint string        `json:"decision_point,omitempty"`
	Metrics       []string      `json:"metrics"`
	Minimize      []string      `json:"minimize,omitempty"`
	Variants      []Variant     `json:"variants"`
	Duration      time.Duration `json:"duration,omitempty"`
	SampleSize    int64         `json:"sample_size,omitempty"`
}

// VariantResult accumulates per-variant metrics
type VariantResult struct {
	VariantID  string             `json:"variant_id"`
	Metrics    map[string]float64 `json:"metrics"`
	Samples    int64              `json:"samples"`
	Confidence float64            `json:"confidence"`
	Winner     bool               `json:"winner"`
}

// ExperimentReport is what the telemetry sink receives at conclusion
type ExperimentReport struct {
	ExperimentID  string          `json:"experiment_id"`
	Name          string          `json:"name"`
	PrimaryMetric string          `json:"primary_metric"`
	Concluded     bool            `json:"concluded"`
	ConcludedAt   time.Time       `json:"concluded_at,omitempty"`
	Variants      []VariantResult `json:"variants"`
}

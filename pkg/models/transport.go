package models

// AnalyzeContentRequest is the body of POST /analyze
type AnalyzeContentRequest struct {
	ContentRef  string           `json:"content_ref" binding:"required"`
	ContentHash string           `json:"content_hash,omitempty"`
	Options     *AnalysisOptions `json:"options,omitempty"`
}

// BatchConfig bounds batch execution
type BatchConfig struct {
	MaxConcurrent       int     `json:"max_concurrent,omitempty"`
	BatchSize           int     `json:"batch_size,omitempty"`
	DelayBetweenBatches string  `json:"delay_between_batches,omitempty"`
	RatePerSecond       float64 `json:"rate_per_second,omitempty"`
	ContinueOnError     bool    `json:"continue_on_error"`
}

// AnalyzeBatchRequest is the body of POST /analyze/batch
type AnalyzeBatchRequest struct {
	ContentRefs []string         `json:"content_refs" binding:"required,min=1"`
	Options     *AnalysisOptions `json:"options,omitempty"`
	Batch       BatchConfig      `json:"batch"`
}

// BatchStatus is the per-item outcome of a batch
type BatchStatus string

const (
	BatchSucceeded BatchStatus = "success"
	BatchFailed    BatchStatus = "failed"
	BatchSkipped   BatchStatus = "skipped"
)

// BatchOutcome is one entry of the parallel outcome array
type BatchOutcome struct {
	Ref    string          `json:"ref"`
	Status BatchStatus     `json:"status"`
	Result *AnalysisResult `json:"result,omitempty"`
	Error  *Failure        `json:"error,omitempty"`
}

// StartExperimentResponse is returned by POST /experiments
type StartExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

// NarrateRequest is the body of POST /narrate
type NarrateRequest struct {
	Text   string  `json:"text" binding:"required"`
	Voice  string  `json:"voice,omitempty"`
	Format string  `json:"format,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
}

// ErrorResponse is the normalised failure body
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

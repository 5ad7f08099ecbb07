package models

// OperationStats aggregates recent samples of one operation
type OperationStats struct {
	Operation    string   `json:"operation"`
	Count        int      `json:"count"`
	AvgLatencyMs float64  `json:"avg_latency_ms"`
	P95LatencyMs float64  `json:"p95_latency_ms"`
	ErrorRate    float64  `json:"error_rate"`
	AvgQuality   float64  `json:"avg_quality"`
	AvgCost      float64  `json:"avg_cost"`
	TotalCost    float64  `json:"total_cost"`
	Baseline     Baseline `json:"baseline"`
}

// Baseline is the rolling expected value per metric
type Baseline struct {
	LatencyMs float64 `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
	Quality   float64 `json:"quality"`
	Cost      float64 `json:"cost"`
	Samples   int64   `json:"samples"`
}

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits         int64   `json:"hits"`
	SemanticHits int64   `json:"semantic_hits"`
	Misses       int64   `json:"misses"`
	Entries      int     `json:"entries"`
	HitRate      float64 `json:"hit_rate"`
	TokensSaved  int64   `json:"tokens_saved"`
}

// OptimizationStats is returned by getOptimizationStats
type OptimizationStats struct {
	CacheHitRate     float64                   `json:"cache_hit_rate"`
	Cache            CacheStats                `json:"cache"`
	EstimatedSavings string                    `json:"estimated_savings"`
	Downgrades       int64                     `json:"downgrades"`
	PerformanceStats map[string]OperationStats `json:"performance_stats"`
}

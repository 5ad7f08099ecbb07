package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host                string
	Port                string
	RequestTimeout      time.Duration
	ContentFetchTimeout time.Duration
	ProviderCallTimeout time.Duration
	MaxRequestBodySize  int64

	// Providers
	ProvidersFile     string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	GeminiAPIKey      string
	EmbeddingModel    string
	TesseractLanguage string

	// Content store
	AzureAccountName string
	AzureAccountKey  string

	// Cache
	CacheSize         int
	CacheTTL          time.Duration
	CacheDBPath       string
	SemanticCache     bool
	SemanticThreshold float64

	// Selection and quality
	QualityThreshold    float64
	LowCostThreshold    float64
	ComplexityThreshold float64

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Monitoring
	MetricsFlushInterval time.Duration
	BaselineAlpha        float64
	AMQPURL              string
	AMQPExchange         string

	// Experiments
	ExperimentSeed int64

	// StubMissingProviders serves catalog entries without credentials from the stub adapter
	StubMissingProviders bool

	BatchMaxConcurrent int

	LogLevel string
	LogFile  string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                getEnvOrDefault("PORT", "8080"),
		RequestTimeout:      parseDurationOrDefault("REQUEST_TIMEOUT", 120*time.Second),
		ContentFetchTimeout: parseDurationOrDefault("CONTENT_FETCH_TIMEOUT", 15*time.Second),
		ProviderCallTimeout: parseDurationOrDefault("PROVIDER_CALL_TIMEOUT", 30*time.Second),
		MaxRequestBodySize:  parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB

		ProvidersFile:     os.Getenv("PROVIDERS_FILE"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		EmbeddingModel:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-004"),
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),

		AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),

		CacheSize:         int(parseIntOrDefault("CACHE_SIZE", 10000)),
		CacheTTL:          parseDurationOrDefault("CACHE_TTL", 24*time.Hour),
		CacheDBPath:       os.Getenv("CACHE_DB_PATH"),
		SemanticCache:     parseBoolOrDefault("SEMANTIC_CACHE", true),
		SemanticThreshold: parseFloatOrDefault("SEMANTIC_THRESHOLD", 0.95),

		QualityThreshold:    parseFloatOrDefault("QUALITY_THRESHOLD", 0.7),
		LowCostThreshold:    parseFloatOrDefault("LOW_COST_THRESHOLD", 0.01),
		ComplexityThreshold: parseFloatOrDefault("COMPLEXITY_THRESHOLD", 0.7),

		RetryMaxAttempts: int(parseIntOrDefault("RETRY_MAX_ATTEMPTS", 3)),
		RetryBaseDelay:   parseDurationOrDefault("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    parseDurationOrDefault("RETRY_MAX_DELAY", 8*time.Second),

		MetricsFlushInterval: parseDurationOrDefault("METRICS_FLUSH_INTERVAL", 60*time.Second),
		BaselineAlpha:        parseFloatOrDefault("BASELINE_ALPHA", 0.1),
		AMQPURL:              os.Getenv("AMQP_URL"),
		AMQPExchange:         getEnvOrDefault("AMQP_EXCHANGE", "content-analyzer.telemetry"),

		ExperimentSeed:       parseIntOrDefault("EXPERIMENT_SEED", 0),
		StubMissingProviders: parseBoolOrDefault("STUB_MISSING_PROVIDERS", false),

		BatchMaxConcurrent: int(parseIntOrDefault("BATCH_MAX_CONCURRENT", 3)),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ContentFetchTimeout <= 0 || c.ProviderCallTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, provider=%s)",
			c.RequestTimeout, c.ContentFetchTimeout, c.ProviderCallTimeout)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("CACHE_SIZE must be > 0 (got %d)", c.CacheSize)
	}
	for name, v := range map[string]float64{
		"SEMANTIC_THRESHOLD":   c.SemanticThreshold,
		"QUALITY_THRESHOLD":    c.QualityThreshold,
		"COMPLEXITY_THRESHOLD": c.ComplexityThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1] (got %v)", name, v)
		}
	}
	if c.BaselineAlpha <= 0 || c.BaselineAlpha > 1 {
		return fmt.Errorf("BASELINE_ALPHA must be within (0,1] (got %v)", c.BaselineAlpha)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1 (got %d)", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base <= max (got base=%s, max=%s)", c.RetryBaseDelay, c.RetryMaxDelay)
	}
	if c.BatchMaxConcurrent < 1 {
		return fmt.Errorf("BATCH_MAX_CONCURRENT must be >= 1 (got %d)", c.BatchMaxConcurrent)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

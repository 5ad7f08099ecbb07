package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PROVIDER_CALL_TIMEOUT", "")
	t.Setenv("SEMANTIC_THRESHOLD", "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.ProviderCallTimeout != 30*time.Second {
		t.Errorf("Expected provider call timeout 30s, got %s", cfg.ProviderCallTimeout)
	}
	if cfg.SemanticThreshold != 0.95 {
		t.Errorf("Expected semantic threshold 0.95, got %f", cfg.SemanticThreshold)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected 3 retry attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("Unexpected server address %s", cfg.ServerAddress())
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"threshold above one", "QUALITY_THRESHOLD", "1.5"},
		{"zero cache", "CACHE_SIZE", "0"},
		{"alpha zero", "BASELINE_ALPHA", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadCatalog_Default(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("Expected default catalog to load, got %v", err)
	}
	if catalog.Top().ID != "openai-gpt4o" {
		t.Errorf("Expected top provider openai-gpt4o, got %s", catalog.Top().ID)
	}
	if catalog.Premium().ID != "gemini-pro" {
		t.Errorf("Expected premium provider gemini-pro, got %s", catalog.Premium().ID)
	}
	if catalog.Cheapest().ID != "local-ocr" {
		t.Errorf("Expected cheapest provider local-ocr, got %s", catalog.Cheapest().ID)
	}
	next, ok := catalog.NextHigher(catalog.Premium().Tier)
	if !ok || next.ID != "openai-gpt4o" {
		t.Errorf("Expected premium to escalate to openai-gpt4o, got %v (ok=%v)", next.ID, ok)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `
providers:
  - id: a
    kind: stub
    tier: 0
    cost_per_1k_tokens: "0.02"
    capabilities: [technical]
  - id: b
    kind: stub
    tier: 1
    cost_per_1k_tokens: "0.001"
    capabilities: [standard]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("Expected catalog to load, got %v", err)
	}
	if catalog.Economy().ID != "b" {
		t.Errorf("Expected economy to default to least capable provider, got %s", catalog.Economy().ID)
	}
	if catalog.Top().CostPer1KTokens.String() != "0.02" {
		t.Errorf("Unexpected top cost %s", catalog.Top().CostPer1KTokens)
	}
}

func TestParseCatalog_BadCost(t *testing.T) {
	_, err := ParseCatalog([]byte(`
providers:
  - id: a
    tier: 0
    cost_per_1k_tokens: "cheap"
`))
	if err == nil {
		t.Error("Expected error for non-numeric cost")
	}
}

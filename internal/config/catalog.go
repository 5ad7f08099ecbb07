package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/anime-shed/content-analyzer-go/internal/provider"
)

type catalogFile struct {
	Premium   string          `yaml:"premium"`
	Economy   string          `yaml:"economy"`
	Providers []providerEntry `yaml:"providers"`
}

type providerEntry struct {
	ID              string   `yaml:"id"`
	Kind            string   `yaml:"kind"`
	Model           string   `yaml:"model"`
	Tier            int      `yaml:"tier"`
	CostPer1KTokens string   `yaml:"cost_per_1k_tokens"`
	MaxTokens       int      `yaml:"max_tokens"`
	Capabilities    []string `yaml:"capabilities"`
}

// DefaultCatalogYAML is used when PROVIDERS_FILE is not set
const DefaultCatalogYAML = `
premium: gemini-pro
economy: gemini-flash
providers:
  - id: openai-gpt4o
    kind: openai
    model: gpt-4o
    tier: 0
    cost_per_1k_tokens: "0.0100"
    max_tokens: 4096
    capabilities: [technical, vision]
  - id: gemini-pro
    kind: gemini
    model: gemini-2.5-pro
    tier: 1
    cost_per_1k_tokens: "0.0050"
    max_tokens: 4096
    capabilities: [comprehensive, vision]
  - id: gemini-flash
    kind: gemini
    model: gemini-2.5-flash
    tier: 2
    cost_per_1k_tokens: "0.0006"
    max_tokens: 2048
    capabilities: [detailed, vision]
  - id: local-ocr
    kind: ocr
    model: tesseract
    tier: 3
    cost_per_1k_tokens: "0"
    max_tokens: 1024
    capabilities: [basic]
`

// LoadCatalog reads the provider catalog from path, or the built-in default when path is empty
func LoadCatalog(path string) (*provider.Catalog, error) {
	data := []byte(DefaultCatalogYAML)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read providers file: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML provider catalog
func ParseCatalog(data []byte) (*provider.Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid providers file: %w", err)
	}

	configs := make([]provider.Config, 0, len(file.Providers))
	for _, entry := range file.Providers {
		cost := decimal.Zero
		if entry.CostPer1KTokens != "" {
			parsed, err := decimal.NewFromString(entry.CostPer1KTokens)
			if err != nil {
				return nil, fmt.Errorf("provider %q: invalid cost_per_1k_tokens %q: %w", entry.ID, entry.CostPer1KTokens, err)
			}
			cost = parsed
		}
		configs = append(configs, provider.Config{
			ID:              entry.ID,
			Kind:            provider.Kind(entry.Kind),
			Model:           entry.Model,
			Tier:            provider.Tier(entry.Tier),
			CostPer1KTokens: cost,
			MaxTokens:       entry.MaxTokens,
			Capabilities:    entry.Capabilities,
		})
	}
	return provider.NewCatalog(configs, file.Premium, file.Economy)
}

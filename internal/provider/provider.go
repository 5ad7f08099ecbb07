package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Kind selects the adapter that talks to a provider
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
	KindOCR    Kind = "ocr"
	KindStub   Kind = "stub"
)

// Tier ranks providers by capability; TierTop is the most capable and expensive
type Tier int

const TierTop Tier = 0

// Config is static provider configuration loaded at startup
type Config struct {
	ID              string          `yaml:"id" json:"id"`
	Kind            Kind            `yaml:"kind" json:"kind"`
	Model           string          `yaml:"model" json:"model"`
	Tier            Tier            `yaml:"tier" json:"tier"`
	CostPer1KTokens decimal.Decimal `yaml:"-" json:"cost_per_1k_tokens"`
	MaxTokens       int             `yaml:"max_tokens" json:"max_tokens"`
	Capabilities    []string        `yaml:"capabilities" json:"capabilities"`
}

// Cost estimates the spend for the given number of tokens
func (c Config) Cost(tokens int64) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	return c.CostPer1KTokens.Mul(decimal.NewFromInt(tokens)).Div(decimal.NewFromInt(1000))
}

// HasCapability reports whether a capability tag is declared
func (c Config) HasCapability(tag string) bool {
	for _, capability := range c.Capabilities {
		if strings.EqualFold(capability, tag) {
			return true
		}
	}
	return false
}

// Covers reports whether the provider can serve the requested detail level.
// A provider covering a level covers every lower level as well.
func (c Config) Covers(level models.DetailLevel) bool {
	want := level.Rank()
	for _, capability := range c.Capabilities {
		candidate := models.DetailLevel(strings.ToLower(capability))
		if _, ok := detailLevels[candidate]; ok && candidate.Rank() >= want {
			return true
		}
	}
	return false
}

var detailLevels = map[models.DetailLevel]struct{}{
	models.DetailBasic:         {},
	models.DetailStandard:      {},
	models.DetailDetailed:      {},
	models.DetailComprehensive: {},
	models.DetailTechnical:     {},
}

// Purpose identifies which sub-analysis a call serves
type Purpose string

const (
	PurposeDescription Purpose = "description"
	PurposeAltText     Purpose = "alt_text"
	PurposeSEO         Purpose = "seo_text"
)

// Call is a single request to an Analysis Provider
type Call struct {
	Purpose   Purpose
	Content   []byte
	MimeType  string
	System    string
	Prompt    string
	Model     string
	MaxTokens int
	Language  string
}

// Response is the raw provider output
type Response struct {
	Output string
	Usage  models.TokenUsage
}

// AnalysisProvider turns content and a prompt into analysis text.
// Failures are *errors.AppError values of type provider.
type AnalysisProvider interface {
	Analyze(ctx context.Context, call Call) (*Response, error)
	Name() string
}

// VoiceOptions configures speech synthesis
type VoiceOptions struct {
	Voice  string  `json:"voice,omitempty"`
	Format string  `json:"format,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
}

// AudioHandle is an opaque synthesised audio payload
type AudioHandle struct {
	Data        []byte
	ContentType string
	Format      string
}

// SpeechSynthesizer turns result text into audio downstream of an analysis
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceOptions) (*AudioHandle, error)
}

// Registry maps provider config ids to live adapters
type Registry struct {
	mu        sync.RWMutex
	providers map[string]AnalysisProvider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]AnalysisProvider)}
}

// Register binds an adapter to a config id
func (r *Registry) Register(id string, p AnalysisProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
}

// Get returns the adapter for a config id
func (r *Registry) Get(id string) (AnalysisProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("no provider registered for %q", id), nil)
	}
	return p, nil
}

// Close releases adapters that hold resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, p := range r.providers {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close provider %s: %w", id, err)
			}
		}
	}
	return firstErr
}

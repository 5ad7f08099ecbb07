package cache

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Embedder produces the vector used for semantic lookup. The model behind it is opaque.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenAIEmbedder embeds text with the Gemini embedding endpoint
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder wraps an existing genai client
func NewGenAIEmbedder(client *genai.Client, model string) *GenAIEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GenAIEmbedder{client: client, model: model}
}

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"},
	)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("embed content: empty response")
	}
	return result.Embeddings[0].Values, nil
}

// SemanticText is the text embedded for a request. Only textual content can be
// embedded with the text model, so ok is false for anything else and the request
// falls back to exact-hash lookup.
func SemanticText(mimeType string, content []byte, opts models.AnalysisOptions) (text string, ok bool) {
	if !strings.HasPrefix(mimeType, "text/") || len(content) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(opts.ContentType)
	b.WriteString(" ")
	b.WriteString(opts.Context)
	b.WriteString(" ")
	b.Write(content)
	return strings.TrimSpace(b.String()), true
}

// CosineSimilarity returns the cosine of the angle between a and b, 0 for mismatched or zero vectors
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

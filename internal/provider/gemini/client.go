package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Client implements provider.AnalysisProvider on the Gemini API
type Client struct {
	client *genai.Client
}

// New creates a Gemini client
func New(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperrors.NewConfigurationError("gemini api key is required", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create gemini client", err)
	}
	return &Client{client: client}, nil
}

// SDK exposes the underlying client so the embedder can share it
func (c *Client) SDK() *genai.Client { return c.client }

func (c *Client) Name() string { return "gemini" }

func (c *Client) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(call.Prompt)}
	if len(call.Content) > 0 {
		if strings.HasPrefix(call.MimeType, "text/") {
			parts = append(parts, genai.NewPartFromText(string(call.Content)))
		} else {
			parts = append(parts, genai.NewPartFromBytes(call.Content, call.MimeType))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if call.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(call.System, genai.RoleUser)
	}
	if call.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(call.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, call.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, classify(err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewProviderError(apperrors.ProviderInvalidResponse, "gemini returned empty content", nil)
	}

	usage := models.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.Prompt = int64(resp.UsageMetadata.PromptTokenCount)
		usage.Completion = int64(resp.UsageMetadata.CandidatesTokenCount)
		usage.Total = int64(resp.UsageMetadata.TotalTokenCount)
	}
	return &provider.Response{Output: text, Usage: usage}, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderErrorFromStatus(apiErr.Code, "gemini request failed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderError(apperrors.ProviderTimeout, "gemini request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NewProviderError(apperrors.ProviderUnavailable, "gemini request failed", err)
}

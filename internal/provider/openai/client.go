package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Config configures the OpenAI-compatible client
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements provider.AnalysisProvider and provider.SpeechSynthesizer on the chat
// completions and speech endpoints.
type Client struct {
	client openai.Client
}

// New creates a client. Retries are disabled because the executor owns retry policy.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.NewConfigurationError("openai api key is required", nil)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{client: openai.NewClient(opts...)}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(call.Prompt)}
	if len(call.Content) > 0 {
		if strings.HasPrefix(call.MimeType, "image/") {
			dataURL := fmt.Sprintf("data:%s;base64,%s", call.MimeType, base64.StdEncoding.EncodeToString(call.Content))
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
		} else {
			parts = append(parts, openai.TextContentPart(string(call.Content)))
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if call.System != "" {
		messages = append(messages, openai.SystemMessage(call.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    call.Model,
		Messages: messages,
	}
	if call.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(call.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, apperrors.NewProviderError(apperrors.ProviderInvalidResponse, "openai returned no choices", nil)
	}

	return &provider.Response{
		Output: completion.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			Prompt:     completion.Usage.PromptTokens,
			Completion: completion.Usage.CompletionTokens,
			Total:      completion.Usage.TotalTokens,
		},
	}, nil
}

// Synthesize renders text to speech
func (c *Client) Synthesize(ctx context.Context, text string, voice provider.VoiceOptions) (*provider.AudioHandle, error) {
	format := voice.Format
	if format == "" {
		format = string(openai.AudioSpeechNewParamsResponseFormatMP3)
	}
	name := voice.Voice
	if name == "" {
		name = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModelTTS1,
		Voice:          openai.AudioSpeechNewParamsVoice(name),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	}
	if voice.Speed > 0 {
		params.Speed = openai.Float(voice.Speed)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewProviderError(apperrors.ProviderInvalidResponse, "failed to read speech audio", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &provider.AudioHandle{Data: data, ContentType: contentType, Format: format}, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apperrors.NewProviderErrorFromStatus(apiErr.StatusCode, "openai request failed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderError(apperrors.ProviderTimeout, "openai request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewProviderError(apperrors.ProviderTimeout, "openai request timed out", err)
	}
	return apperrors.NewProviderError(apperrors.ProviderUnavailable, "openai request failed", err)
}

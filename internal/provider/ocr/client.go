package ocr

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Client is a local economy provider that describes content from the text tesseract finds in it
type Client struct {
	mu        sync.Mutex
	languages []string
}

// New creates an OCR provider for the given tesseract languages
func New(languages ...string) *Client {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Client{languages: languages}
}

func (c *Client) Name() string { return "tesseract" }

func (c *Client) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(call.Content) == 0 {
		return nil, apperrors.NewProviderError(apperrors.ProviderInvalidRequest, "ocr requires content bytes", nil)
	}

	text, err := c.extract(call.Content)
	if err != nil {
		return nil, apperrors.NewProviderError(apperrors.ProviderInvalidResponse, "ocr extraction failed", err)
	}

	words := strings.Fields(text)
	var output string
	switch call.Purpose {
	case provider.PurposeAltText:
		output = "Image containing text: " + firstWords(words, 16)
	case provider.PurposeSEO:
		output = firstWords(words, 10)
	default:
		b, err := json.Marshal(map[string]any{
			"description": "Detected text: " + strings.Join(words, " "),
			"attributes":  map[string]string{"engine": "tesseract", "words": strconv.Itoa(len(words))},
			"confidence":  ocrConfidence(len(words)),
		})
		if err != nil {
			return nil, err
		}
		output = string(b)
	}

	n := int64(len(words))
	return &provider.Response{Output: output, Usage: models.TokenUsage{Completion: n, Total: n}}, nil
}

// tesseract clients are not safe for concurrent use
func (c *Client) extract(content []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(c.languages...); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return "", err
	}
	return client.Text()
}

func ocrConfidence(words int) float64 {
	switch {
	case words == 0:
		return 0.2
	case words < 5:
		return 0.4
	default:
		return 0.6
	}
}

func firstWords(words []string, n int) string {
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

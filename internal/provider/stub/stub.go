package stub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/anime-shed/content-analyzer-go/internal/provider"
	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Provider is a deterministic, no-network analysis provider for local runs and CI.
// Output depends only on the call so repeated runs are stable.
type Provider struct {
	name string
}

// New creates a stub provider reporting the given name
func New(name string) *Provider {
	if name == "" {
		name = "stub"
	}
	return &Provider{name: name}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Analyze(ctx context.Context, call provider.Call) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(append([]byte(call.Prompt+"|"+call.Model), call.Content...))
	short := hex.EncodeToString(sum[:6])

	var output string
	switch call.Purpose {
	case provider.PurposeAltText:
		output = fmt.Sprintf("Stub item %s shown against a plain background", short)
	case provider.PurposeSEO:
		output = fmt.Sprintf("Stub item %s, detailed view, high quality", short)
	default:
		b, err := json.Marshal(map[string]any{
			"description":     fmt.Sprintf("Stubbed analysis %s produced by %s. The content shows a single item centred in frame with neutral lighting and a plain background.", short, p.name),
			"visual_elements": []string{"item", "background"},
			"colors":          []string{"white", "grey"},
			"composition":     "centered",
			"attributes":      map[string]string{"source": p.name},
			"confidence":      0.8,
		})
		if err != nil {
			return nil, err
		}
		output = string(b)
	}

	prompt := int64(len(call.Prompt)/4 + 1)
	completion := int64(len(output)/4 + 1)
	return &provider.Response{
		Output: output,
		Usage:  models.TokenUsage{Prompt: prompt, Completion: completion, Total: prompt + completion},
	}, nil
}

package stub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/content-analyzer-go/internal/provider"
)

func TestProvider_Deterministic(t *testing.T) {
	p := New("stub-premium")
	call := provider.Call{Purpose: provider.PurposeDescription, Prompt: "describe", Model: "m", Content: []byte("abc")}

	first, err := p.Analyze(context.Background(), call)
	require.NoError(t, err)
	second, err := p.Analyze(context.Background(), call)
	require.NoError(t, err)

	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, first.Usage, second.Usage)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(first.Output), &decoded))
	assert.Contains(t, decoded["description"], "stub-premium")
}

func TestProvider_PlainTextPurposes(t *testing.T) {
	p := New("")
	assert.Equal(t, "stub", p.Name())

	alt, err := p.Analyze(context.Background(), provider.Call{Purpose: provider.PurposeAltText, Prompt: "alt"})
	require.NoError(t, err)
	assert.False(t, json.Valid([]byte(alt.Output)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Analyze(ctx, provider.Call{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

package analyzer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

func TestParseDescription_Structured(t *testing.T) {
	raw := "```json\n" + `{
  "description": "A red leather armchair on a white background.",
  "visual_elements": ["armchair", "", "shadow"],
  "colors": ["red", "white"],
  "composition": "centered",
  "attributes": {"material": "leather", "seats": 1},
  "confidence": 0.92
}` + "\n```"

	got := ParseDescription(raw)

	want := ParsedOutput{
		Description: "A red leather armchair on a white background.",
		Confidence:  0.92,
		Structured:  true,
		Metadata: models.ContentMetadata{
			VisualElements: []string{"armchair", "shadow"},
			Colors:         []string{"red", "white"},
			Composition:    "centered",
			Attributes:     map[string]string{"material": "leather", "seats": "1"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDescription mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDescription_Fallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain prose", "A cat sleeping on a sofa.", "A cat sleeping on a sofa."},
		{"json without description", `{"colors": ["grey"]}`, `{"colors": ["grey"]}`},
		{"truncated json", `{"description": "A cat`, `{"description": "A cat`},
		{"fenced prose", "```\nA dog.\n```", "A dog."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDescription(tt.raw)
			assert.Equal(t, tt.want, got.Description)
			assert.Equal(t, FallbackConfidence, got.Confidence)
			assert.False(t, got.Structured)
		})
	}
}

func TestParseDescription_ProseAroundObject(t *testing.T) {
	got := ParseDescription(`Here you go: {"description": "A lamp", "confidence": 3} Hope it helps`)
	assert.Equal(t, "A lamp", got.Description)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestParseAuxiliary(t *testing.T) {
	assert.Equal(t, "Red armchair", ParseAuxiliary(`"Red armchair"`))
	assert.Equal(t, "Red armchair", ParseAuxiliary(`{"text": "Red armchair"}`))
	assert.Equal(t, "Buy the red armchair", ParseAuxiliary("```\nBuy the red armchair\n```"))
}

package analyzer

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// FallbackConfidence is reported when the provider output could not be parsed
const FallbackConfidence = 0.5

// ParsedOutput is the structured part of a description response
type ParsedOutput struct {
	Description string
	Metadata    models.ContentMetadata
	Confidence  float64
	Structured  bool
}

// stripCodeFences removes a surrounding markdown code fence, if any
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string ("json")
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject narrows s to its outermost JSON object when the provider wrapped it in prose
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// ParseDescription reads the primary provider output. Anything that is not a JSON object
// with a description becomes the raw text with FallbackConfidence.
func ParseDescription(raw string) ParsedOutput {
	text := stripCodeFences(raw)
	body := extractObject(text)

	if !gjson.Valid(body) {
		return fallback(text)
	}
	doc := gjson.Parse(body)
	description := strings.TrimSpace(doc.Get("description").String())
	if !doc.IsObject() || description == "" {
		return fallback(text)
	}

	out := ParsedOutput{
		Description: description,
		Confidence:  FallbackConfidence,
		Structured:  true,
		Metadata: models.ContentMetadata{
			VisualElements: stringArray(doc.Get("visual_elements")),
			Colors:         stringArray(doc.Get("colors")),
			Composition:    strings.TrimSpace(doc.Get("composition").String()),
		},
	}
	if c := doc.Get("confidence"); c.Exists() {
		out.Confidence = clamp01(c.Float())
	}
	if attrs := doc.Get("attributes"); attrs.IsObject() {
		out.Metadata.Attributes = make(map[string]string)
		attrs.ForEach(func(key, value gjson.Result) bool {
			out.Metadata.Attributes[key.String()] = value.String()
			return true
		})
	}
	return out
}

// ParseAuxiliary cleans alt-text and SEO outputs, which are plain text but sometimes arrive
// fenced or wrapped in {"text": ...}.
func ParseAuxiliary(raw string) string {
	text := stripCodeFences(raw)
	if gjson.Valid(text) {
		doc := gjson.Parse(text)
		for _, field := range []string{"text", "alt_text", "seo_text"} {
			if v := doc.Get(field); v.Exists() {
				return strings.TrimSpace(v.String())
			}
		}
	}
	return strings.Trim(text, "\"' \n")
}

func fallback(text string) ParsedOutput {
	return ParsedOutput{Description: strings.TrimSpace(text), Confidence: FallbackConfidence}
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, item := range r.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package optimizer

import (
	"strings"
	"unicode/utf8"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// Prompt line markers. Required lines survive every compression level; optional lines
// are the first to go.
const (
	RequiredMarker = "!"
	OptionalMarker = "~"
	optionalTag    = "(optional)"
)

// EstimateTokens approximates the token count of s as ceil(runes/4)
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

type promptLine struct {
	text     string
	required bool
	optional bool
}

func parseLines(prompt string) []promptLine {
	raw := strings.Split(prompt, "\n")
	lines := make([]promptLine, 0, len(raw))
	for _, l := range raw {
		trimmed := strings.TrimSpace(l)
		line := promptLine{text: strings.TrimRight(l, " \t\r")}
		switch {
		case strings.HasPrefix(trimmed, RequiredMarker):
			line.required = true
			line.text = strings.TrimSpace(strings.TrimPrefix(trimmed, RequiredMarker))
		case strings.HasPrefix(trimmed, OptionalMarker):
			line.optional = true
			line.text = strings.TrimSpace(strings.TrimPrefix(trimmed, OptionalMarker))
		case strings.HasPrefix(strings.ToLower(trimmed), optionalTag):
			line.optional = true
			line.text = strings.TrimSpace(trimmed[len(optionalTag):])
		}
		lines = append(lines, line)
	}
	return lines
}

func joinLines(lines []promptLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

// Compress shapes a prompt for the given level and token budget. Markers are always
// stripped. The output fits maxTokens unless the required lines alone exceed it.
func Compress(prompt string, level models.CompressionLevel, maxTokens int) string {
	lines := parseLines(prompt)

	switch level {
	case models.CompressionLow:
		lines = collapse(lines)
	case models.CompressionMedium, models.CompressionHigh:
		lines = dropOptional(collapse(lines))
	}

	if maxTokens > 0 {
		lines = fit(lines, maxTokens)
	}
	return joinLines(lines)
}

// collapse squeezes runs of whitespace and removes blank and repeated lines
func collapse(lines []promptLine) []promptLine {
	seen := make(map[string]struct{}, len(lines))
	out := make([]promptLine, 0, len(lines))
	for _, l := range lines {
		l.text = strings.Join(strings.Fields(l.text), " ")
		if l.text == "" {
			continue
		}
		if _, dup := seen[l.text]; dup && !l.required {
			continue
		}
		seen[l.text] = struct{}{}
		out = append(out, l)
	}
	return out
}

func dropOptional(lines []promptLine) []promptLine {
	out := lines[:0:0]
	for _, l := range lines {
		if !l.optional {
			out = append(out, l)
		}
	}
	return out
}

// fit trims the prompt to maxTokens: optional lines first (last to first), then
// other non-required lines from the end, word by word.
func fit(lines []promptLine, maxTokens int) []promptLine {
	over := func() bool { return EstimateTokens(joinLines(lines)) > maxTokens }

	for i := len(lines) - 1; i >= 0 && over(); i-- {
		if lines[i].optional {
			lines = append(lines[:i], lines[i+1:]...)
		}
	}

	for i := len(lines) - 1; i >= 0 && over(); i-- {
		if lines[i].required {
			continue
		}
		words := strings.Fields(lines[i].text)
		for len(words) > 0 && over() {
			words = words[:len(words)-1]
			lines[i].text = strings.Join(words, " ")
		}
		if len(words) == 0 {
			lines = append(lines[:i], lines[i+1:]...)
		}
	}
	return lines
}

package analyzer

import (
	"fmt"
	"strings"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// PromptSet holds the prompts for one execution. Lines starting with "!" are required
// and lines starting with "~" are optional; the optimizer strips both markers.
type PromptSet struct {
	System      string
	Description string
	AltText     string
	SEO         string
}

const systemPrompt = "You are a content analysis assistant. Be factual and describe only what is present."

var detailInstructions = map[models.DetailLevel]string{
	models.DetailBasic:         "Give a one-sentence description.",
	models.DetailStandard:      "Give a short paragraph describing the main subject and setting.",
	models.DetailDetailed:      "Describe the subject, setting, notable objects and colours in detail.",
	models.DetailComprehensive: "Describe everything visible: subjects, objects, text, colours, composition and mood.",
	models.DetailTechnical:     "Give a technical analysis: materials, measurements, construction, visible text and defects.",
}

// BuildPrompts renders the prompt set for the given options
func BuildPrompts(opts models.AnalysisOptions) PromptSet {
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = "general"
	}
	language := strings.TrimSpace(opts.TargetLanguage)
	if language == "" {
		language = "en"
	}
	detail, ok := detailInstructions[models.DetailLevel(strings.ToLower(string(opts.DetailLevel)))]
	if !ok {
		detail = detailInstructions[models.DetailStandard]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "! Analyze this %s content.\n", contentType)
	fmt.Fprintf(&b, "! %s\n", detail)
	if ctx := strings.TrimSpace(opts.Context); ctx != "" {
		fmt.Fprintf(&b, "! Context from the caller: %s\n", ctx)
	}
	if len(opts.RequiredElements) > 0 {
		fmt.Fprintf(&b, "! Make sure to mention: %s.\n", strings.Join(opts.RequiredElements, ", "))
	}
	b.WriteString("~ Mention the lighting and mood if they are notable.\n")
	b.WriteString("~ Prefer concrete nouns over adjectives.\n")
	b.WriteString(`! Respond with a JSON object: {"description": string, "visual_elements": [string], "colors": [string], "composition": string, "attributes": {string: string}, "confidence": number between 0 and 1}.` + "\n")
	fmt.Fprintf(&b, "! Write the text fields in language %q.", language)

	return PromptSet{
		System:      systemPrompt,
		Description: b.String(),
		AltText: fmt.Sprintf("! Write alt text for this %s content in language %q.\n"+
			"! At most 125 characters. Do not start with \"image of\" or \"picture of\".\n"+
			"~ Focus on what a screen reader user needs to know.\n"+
			"! Respond with the plain text only.", contentType, language),
		SEO: fmt.Sprintf("! Write a search-friendly caption for this %s content in language %q.\n"+
			"! One or two sentences with the most relevant keywords.\n"+
			"~ Avoid keyword stuffing.\n"+
			"! Respond with the plain text only.", contentType, language),
	}
}

package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

// forbiddenPenalty scales accuracy for every forbidden-pattern match
const forbiddenPenalty = 0.7

// QualityCriteria are the checks a result is scored against
type QualityCriteria struct {
	MinLength         int
	MaxLength         int
	RequiredElements  []string
	ForbiddenPatterns []string
	ReferenceText     string
}

// LengthBounds are description length limits in characters
type LengthBounds struct {
	Min int
	Max int
}

// QualityThresholds defines the length bounds per detail level
type QualityThresholds struct {
	Lengths map[models.DetailLevel]LengthBounds
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		Lengths: map[models.DetailLevel]LengthBounds{
			models.DetailBasic:         {Min: 20, Max: 300},
			models.DetailStandard:      {Min: 50, Max: 800},
			models.DetailDetailed:      {Min: 100, Max: 1500},
			models.DetailComprehensive: {Min: 150, Max: 3000},
			models.DetailTechnical:     {Min: 150, Max: 4000},
		},
	}
}

// QualityIssue represents a quality evaluation finding
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// QualityReport is the outcome of an evaluation
type QualityReport struct {
	Scores  models.QualityScores `json:"scores"`
	Overall float64              `json:"overall"`
	Issues  []QualityIssue       `json:"issues,omitempty"`
}

// QualityEvaluator scores analysis text with deterministic penalties
type QualityEvaluator struct {
	thresholds QualityThresholds
	patterns   sync.Map // pattern -> *regexp.Regexp
}

// NewQualityEvaluator creates a new quality evaluator with default thresholds
func NewQualityEvaluator() *QualityEvaluator {
	return &QualityEvaluator{thresholds: DefaultQualityThresholds()}
}

// NewQualityEvaluatorWithThresholds creates a quality evaluator with custom thresholds
func NewQualityEvaluatorWithThresholds(thresholds QualityThresholds) *QualityEvaluator {
	return &QualityEvaluator{thresholds: thresholds}
}

// CriteriaFor derives criteria from analysis options
func (qe *QualityEvaluator) CriteriaFor(opts models.AnalysisOptions) QualityCriteria {
	bounds, ok := qe.thresholds.Lengths[models.DetailLevel(strings.ToLower(string(opts.DetailLevel)))]
	if !ok {
		bounds = qe.thresholds.Lengths[models.DetailStandard]
	}
	return QualityCriteria{
		MinLength:         bounds.Min,
		MaxLength:         bounds.Max,
		RequiredElements:  opts.RequiredElements,
		ForbiddenPatterns: opts.ForbiddenPatterns,
		ReferenceText:     opts.ReferenceText,
	}
}

// Evaluate scores text. Every sub-score starts at 1 and only penalties apply.
func (qe *QualityEvaluator) Evaluate(text string, c QualityCriteria) QualityReport {
	return qe.evaluate(text, text, c)
}

// EvaluateResult scores the description for length and consistency, and all text fields
// for required elements and forbidden patterns.
func (qe *QualityEvaluator) EvaluateResult(result *models.AnalysisResult, c QualityCriteria) QualityReport {
	all := strings.Join([]string{result.Description, result.AltText, result.SEOText}, "\n")
	return qe.evaluate(result.Description, all, c)
}

func (qe *QualityEvaluator) evaluate(primary, all string, c QualityCriteria) QualityReport {
	scores := models.QualityScores{Accuracy: 1, Completeness: 1, Relevance: 1, Consistency: 1}
	var issues []QualityIssue

	// 1. Length
	length := utf8.RuneCountInString(strings.TrimSpace(primary))
	if c.MinLength > 0 && length < c.MinLength {
		scores.Completeness *= float64(length) / float64(c.MinLength)
		issues = append(issues, QualityIssue{
			Type:        "too_short",
			Message:     "Description is shorter than expected for the requested detail level.",
			Severity:    "warning",
			ActualValue: float64(length),
			Threshold:   float64(c.MinLength),
		})
	} else if c.MaxLength > 0 && length > c.MaxLength {
		scores.Relevance *= float64(c.MaxLength) / float64(length)
		issues = append(issues, QualityIssue{
			Type:        "too_long",
			Message:     "Description is longer than expected for the requested detail level.",
			Severity:    "warning",
			ActualValue: float64(length),
			Threshold:   float64(c.MaxLength),
		})
	}

	// 2. Required elements
	if required := nonEmpty(c.RequiredElements); len(required) > 0 {
		words := strings.Fields(strings.ToLower(all))
		found := 0
		for _, element := range required {
			if containsElement(strings.ToLower(all), words, element) {
				found++
				continue
			}
			issues = append(issues, QualityIssue{
				Type:     "missing_element",
				Message:  fmt.Sprintf("Required element %q is not mentioned.", element),
				Severity: "error",
			})
		}
		scores.Completeness *= float64(found) / float64(len(required))
	}

	// 3. Forbidden patterns
	for _, pattern := range nonEmpty(c.ForbiddenPatterns) {
		re := qe.compile(pattern)
		matches := len(re.FindAllStringIndex(all, -1))
		for i := 0; i < matches; i++ {
			scores.Accuracy *= forbiddenPenalty
		}
		if matches > 0 {
			issues = append(issues, QualityIssue{
				Type:        "forbidden_pattern",
				Message:     fmt.Sprintf("Text matches forbidden pattern %q.", pattern),
				Severity:    "error",
				ActualValue: float64(matches),
			})
		}
	}

	// 4. Consistency with a reference
	if ref := strings.Fields(strings.ToLower(c.ReferenceText)); len(ref) > 0 {
		errRate, _ := wer.WER(ref, strings.Fields(strings.ToLower(primary)))
		scores.Consistency = clamp01(1 - errRate)
		if scores.Consistency < 0.5 {
			issues = append(issues, QualityIssue{
				Type:        "inconsistent",
				Message:     "Description diverges from the reference text.",
				Severity:    "warning",
				ActualValue: errRate,
			})
		}
	}

	scores.Accuracy = clamp01(scores.Accuracy)
	scores.Completeness = clamp01(scores.Completeness)
	scores.Relevance = clamp01(scores.Relevance)

	return QualityReport{
		Scores:  scores,
		Overall: (scores.Accuracy + scores.Completeness + scores.Relevance + scores.Consistency) / 4,
		Issues:  issues,
	}
}

// compile caches patterns; an invalid pattern is matched literally
func (qe *QualityEvaluator) compile(pattern string) *regexp.Regexp {
	if cached, ok := qe.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	actual, _ := qe.patterns.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp)
}

// containsElement matches an element literally, or against any window of the same number
// of words within an edit distance of one per five characters. Elements shorter than five
// characters must match literally.
func containsElement(lower string, words []string, element string) bool {
	element = strings.ToLower(strings.TrimSpace(element))
	if strings.Contains(lower, element) {
		return true
	}
	target := strings.Fields(element)
	if len(target) == 0 || len(words) < len(target) {
		return false
	}
	joined := strings.Join(target, " ")
	tolerance := utf8.RuneCountInString(joined) / 5
	if tolerance == 0 {
		return false
	}
	for i := 0; i+len(target) <= len(words); i++ {
		window := strings.Trim(strings.Join(words[i:i+len(target)], " "), ".,;:!?\"'()")
		if levenshtein.Distance(window, joined) <= tolerance {
			return true
		}
	}
	return false
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
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

// HasCriticalIssues checks if there are any critical (error severity) issues
func HasCriticalIssues(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

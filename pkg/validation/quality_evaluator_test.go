package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestEvaluate_CleanText(t *testing.T) {
	evaluator := NewQualityEvaluator()
	text := "A red leather armchair stands on a white background with soft shadows."

	report := evaluator.Evaluate(text, QualityCriteria{MinLength: 20, MaxLength: 300})

	if report.Overall != 1 {
		t.Errorf("Expected overall 1 for clean text, got %f", report.Overall)
	}
	if len(report.Issues) != 0 {
		t.Errorf("Expected no issues, got %v", report.Issues)
	}
}

func TestEvaluate_LengthPenalties(t *testing.T) {
	evaluator := NewQualityEvaluator()

	tests := []struct {
		name             string
		text             string
		wantCompleteness float64
		wantRelevance    float64
		wantIssue        string
	}{
		{"too short", strings.Repeat("a", 25), 0.5, 1, "too_short"},
		{"too long", strings.Repeat("a", 200), 1, 0.5, "too_long"},
		{"within bounds", strings.Repeat("a", 75), 1, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := evaluator.Evaluate(tt.text, QualityCriteria{MinLength: 50, MaxLength: 100})

			if !approx(report.Scores.Completeness, tt.wantCompleteness) {
				t.Errorf("Expected completeness %f, got %f", tt.wantCompleteness, report.Scores.Completeness)
			}
			if !approx(report.Scores.Relevance, tt.wantRelevance) {
				t.Errorf("Expected relevance %f, got %f", tt.wantRelevance, report.Scores.Relevance)
			}
			if tt.wantIssue != "" && (len(report.Issues) != 1 || report.Issues[0].Type != tt.wantIssue) {
				t.Errorf("Expected a single %s issue, got %v", tt.wantIssue, report.Issues)
			}
		})
	}
}

func TestEvaluate_RequiredElements(t *testing.T) {
	evaluator := NewQualityEvaluator()
	text := "A leather armchar in a bright studio."

	report := evaluator.Evaluate(text, QualityCriteria{RequiredElements: []string{"armchair", "Leather", "price", ""}})

	if !approx(report.Scores.Completeness, 2.0/3.0) {
		t.Errorf("Expected completeness 2/3, got %f", report.Scores.Completeness)
	}
	if !HasCriticalIssues(report.Issues) {
		t.Error("Expected missing element to be a critical issue")
	}
}

func TestEvaluate_ShortElementsMatchLiterally(t *testing.T) {
	evaluator := NewQualityEvaluator()

	report := evaluator.Evaluate("A bed in a room.", QualityCriteria{RequiredElements: []string{"red"}})

	if report.Scores.Completeness != 0 {
		t.Errorf("Expected short element not to fuzzy match, got completeness %f", report.Scores.Completeness)
	}
}

func TestEvaluate_ForbiddenPatterns(t *testing.T) {
	evaluator := NewQualityEvaluator()
	text := "Image of a chair. Another image of a chair."

	report := evaluator.Evaluate(text, QualityCriteria{ForbiddenPatterns: []string{`(?i)image of`, `[unclosed`}})

	if !approx(report.Scores.Accuracy, 0.49) {
		t.Errorf("Expected accuracy 0.7^2, got %f", report.Scores.Accuracy)
	}
	if !approx(report.Overall, (0.49+3)/4) {
		t.Errorf("Expected overall to be the mean of sub-scores, got %f", report.Overall)
	}
}

func TestEvaluate_Consistency(t *testing.T) {
	evaluator := NewQualityEvaluator()

	same := evaluator.Evaluate("A red chair", QualityCriteria{ReferenceText: "a red chair"})
	if same.Scores.Consistency != 1 {
		t.Errorf("Expected consistency 1 for identical text, got %f", same.Scores.Consistency)
	}

	diff := evaluator.Evaluate("A blue chair", QualityCriteria{ReferenceText: "a red chair"})
	if !approx(diff.Scores.Consistency, 2.0/3.0) {
		t.Errorf("Expected consistency 2/3 for one substitution, got %f", diff.Scores.Consistency)
	}
}

func TestEvaluateResult_ChecksAllFields(t *testing.T) {
	evaluator := NewQualityEvaluator()
	result := &models.AnalysisResult{
		Description: "A red leather armchair stands on a white background.",
		AltText:     "Picture of a red armchair",
		SEOText:     "Red leather armchair for the living room, affordable price",
	}

	criteria := evaluator.CriteriaFor(models.AccessibilityOptions())
	criteria.MinLength = 0
	criteria.RequiredElements = []string{"price"}
	report := evaluator.EvaluateResult(result, criteria)

	if report.Scores.Completeness != 1 {
		t.Errorf("Expected required element found in SEO text, got completeness %f", report.Scores.Completeness)
	}
	if !approx(report.Scores.Accuracy, 0.7) {
		t.Errorf("Expected alt text forbidden phrase to cost accuracy, got %f", report.Scores.Accuracy)
	}
}

func TestCriteriaFor_DetailLevels(t *testing.T) {
	evaluator := NewQualityEvaluator()

	basic := evaluator.CriteriaFor(models.FastOptions())
	comprehensive := evaluator.CriteriaFor(models.AccessibilityOptions())
	unknown := evaluator.CriteriaFor(models.AnalysisOptions{DetailLevel: "whatever"})

	if basic.MinLength >= comprehensive.MinLength {
		t.Errorf("Expected comprehensive to require longer text than basic (%d vs %d)", comprehensive.MinLength, basic.MinLength)
	}
	if unknown.MinLength != DefaultQualityThresholds().Lengths[models.DetailStandard].Min {
		t.Errorf("Expected unknown detail level to fall back to standard bounds, got %d", unknown.MinLength)
	}
	if len(comprehensive.ForbiddenPatterns) == 0 {
		t.Error("Expected accessibility options to carry forbidden patterns")
	}
}

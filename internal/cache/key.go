package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/anime-shed/content-analyzer-go/pkg/models"
)

var folder = cases.Fold()

func normalize(s string) string {
	return strings.Join(strings.Fields(folder.String(norm.NFKC.String(s))), " ")
}

func normalizeList(items []string) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if n := normalize(item); n != "" {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// OptionsKey is the canonical form of the options that shape an analysis.
// Routing-only fields (cost ceiling, experiment, compression) are excluded.
func OptionsKey(opts models.AnalysisOptions) string {
	detail := models.DetailLevel(normalize(string(opts.DetailLevel)))
	if detail == "" {
		detail = models.DetailStandard
	}
	fields := []string{
		"type=" + normalize(opts.ContentType),
		"detail=" + string(detail),
		"lang=" + language.Make(normalize(opts.TargetLanguage)).String(),
		"ctx=" + normalize(opts.Context),
		"floor=" + strconv.FormatFloat(opts.QualityFloor, 'f', 3, 64),
		"required=" + normalizeList(opts.RequiredElements),
		"forbidden=" + normalizeList(opts.ForbiddenPatterns),
		"reference=" + normalize(opts.ReferenceText),
		"override=" + normalize(opts.ProviderOverride),
	}
	return strings.Join(fields, "|")
}

// Key derives the cache key for a (content hash, options) pair
func Key(contentHash string, opts models.AnalysisOptions) string {
	return KeyFor(contentHash, OptionsKey(opts))
}

// KeyFor derives the cache key from an already normalised options key
func KeyFor(contentHash, optionsKey string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(strings.TrimSpace(contentHash)+"|"+optionsKey))
}

// Package filter decides whether an execution block is "data processing"
// (kept) or pure "exploration" (dropped) when assembling a synthesized
// artifact. Keyword lists are package-level vars so implementers can
// extend them, per spec, as long as the priority rules below are preserved.
package filter

import (
	"regexp"
	"strings"
)

// DataProcessingKeywords indicate a data-processing step. Entries containing
// "_", "." or "(" match as substrings anywhere in the code; the others match
// only as whole words.
var DataProcessingKeywords = []string{
	"read_csv", "to_csv", "read_excel", "to_excel", "read_json", "to_json",
	"read_parquet", "to_parquet", "read_table", "read_pickle", "to_pickle",
	"merge", "groupby", "pivot", "concat", "join", "fillna", "dropna",
	"apply", "transform", "normalize", "scale", "fit", "fit_transform",
	"predict", "train_test_split",
}

// ExplorationKeywords are single-word indicators of pure exploration.
var ExplorationKeywords = []string{
	"head", "tail", "describe", "info", "shape", "dtypes", "print", "columns", "unique",
}

// VisualizationKeywords indicate plotting-only activity.
var VisualizationKeywords = []string{
	"plt.", "sns.", "matplotlib", "seaborn", ".plot(",
}

var wordBoundary = func(kw string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
}

func isCompound(kw string) bool {
	return strings.Contains(kw, "_") || strings.Contains(kw, ".") || strings.Contains(kw, "(")
}

func matchAny(code string, keywords []string) bool {
	for _, kw := range keywords {
		if isCompound(kw) {
			if strings.Contains(code, kw) {
				return true
			}
			continue
		}
		if wordBoundary(kw).MatchString(code) {
			return true
		}
	}
	return false
}

// ShouldKeep applies the priority rules: an explicit output file always
// wins; otherwise keyword matching decides, and exploration/visualization
// content with no data-processing signal is dropped.
func ShouldKeep(code string, outputFiles []string) bool {
	if len(outputFiles) > 0 {
		return true
	}

	hasDataProcessing := matchAny(code, DataProcessingKeywords)
	hasExploration := matchAny(code, ExplorationKeywords)
	hasVisualization := matchAny(code, VisualizationKeywords)

	if hasDataProcessing {
		return true
	}
	if hasExploration || hasVisualization {
		return false
	}
	// Neither signal present: default to keeping — only positively
	// identified exploration/visualization content is dropped.
	return true
}

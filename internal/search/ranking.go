package search

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/can1357/smgrep/internal/store"
)

// structuralBoost multipliers (SPEC_FULL §4.6). Multiple rules compose.
const (
	definitionBoost = 1.25
	testFilePenalty = 0.85
	docFilePenalty  = 0.5
)

var boostedChunkTypes = map[store.ChunkType]bool{
	store.ChunkTypeFunction:  true,
	store.ChunkTypeClass:     true,
	store.ChunkTypeInterface: true,
	store.ChunkTypeMethod:    true,
	store.ChunkTypeTypeAlias: true,
}

var docExtensions = map[string]bool{
	"md": true, "mdx": true, "txt": true, "json": true,
	"yaml": true, "yml": true, "lock": true,
}

// applyStructuralBoost scales each result's score by chunk type and path
// category, grounded on original_source's search/ranking.rs apply_structural_boost.
func applyStructuralBoost(results []*store.SearchResult) {
	for _, r := range results {
		if boostedChunkTypes[r.ChunkType] {
			r.Score *= definitionBoost
		}
		if isTestFile(r.Path) {
			r.Score *= testFilePenalty
		}
		if isDocOrConfig(r.Path) {
			r.Score *= docFilePenalty
		}
	}
}

func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, "__tests__")
}

func isDocOrConfig(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if docExtensions[ext] {
		return true
	}
	return strings.Contains(strings.ToLower(path), "/docs/")
}

// deduplicate keeps the highest-scoring result per (path, start_line) group,
// grounded on ranking.rs's deduplicate.
func deduplicate(results []*store.SearchResult) []*store.SearchResult {
	if len(results) == 0 {
		return results
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		if results[i].StartLine != results[j].StartLine {
			return results[i].StartLine < results[j].StartLine
		}
		return results[i].Score > results[j].Score
	})

	out := make([]*store.SearchResult, 0, len(results))
	for _, r := range results {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Path == r.Path && last.StartLine == r.StartLine {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// applyPerFileLimit caps each path at limit results, preserving the
// highest-scoring ones, then re-sorts the whole set by score descending.
// Grounded on ranking.rs's apply_per_file_limit.
func applyPerFileLimit(results []*store.SearchResult, limit int) []*store.SearchResult {
	if limit <= 0 {
		return results
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Path != results[j].Path {
			return results[i].Path < results[j].Path
		}
		return results[i].Score > results[j].Score
	})

	final := make([]*store.SearchResult, 0, len(results))
	count := 0
	for i, r := range results {
		isNewPath := i == 0 || final[len(final)-1] == nil
		if len(final) > 0 {
			isNewPath = final[len(final)-1].Path != r.Path
		}
		if isNewPath {
			count = 0
		}
		if count < limit {
			count++
			final = append(final, r)
		}
	}

	sortByScoreDescending(final)
	return final
}

// sortByScoreDescending sorts results by score descending; NaN scores are
// treated as tied (SPEC_FULL §4.5 step 4).
func sortByScoreDescending(results []*store.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

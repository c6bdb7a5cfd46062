package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/can1357/smgrep/internal/store"
)

func TestApplyStructuralBoost(t *testing.T) {
	results := []*store.SearchResult{
		{Path: "src/main.go", Score: 1.0, ChunkType: store.ChunkTypeFunction},
		{Path: "src/lib.go", Score: 1.0, ChunkType: store.ChunkTypeBlock},
		{Path: "src/main.test.go", Score: 1.0, ChunkType: store.ChunkTypeFunction},
		{Path: "README.md", Score: 1.0, ChunkType: store.ChunkTypeOther},
	}

	applyStructuralBoost(results)

	assert.InDelta(t, 1.25, results[0].Score, 1e-6)
	assert.InDelta(t, 1.0, results[1].Score, 1e-6)
	assert.InDelta(t, 1.25*0.85, results[2].Score, 1e-6)
	assert.InDelta(t, 0.5, results[3].Score, 1e-6)
}

func TestDeduplicate(t *testing.T) {
	results := []*store.SearchResult{
		{Path: "src/main.go", StartLine: 10, Score: 1.0},
		{Path: "src/main.go", StartLine: 10, Score: 2.0},
		{Path: "src/lib.go", StartLine: 20, Score: 1.5},
	}

	deduped := deduplicate(results)
	assert.Len(t, deduped, 2)

	for _, r := range deduped {
		if r.Path == "src/main.go" {
			assert.InDelta(t, 2.0, r.Score, 1e-6)
		}
	}
}

func TestApplyPerFileLimit(t *testing.T) {
	results := []*store.SearchResult{
		{Path: "file1.go", StartLine: 1, Score: 5.0},
		{Path: "file1.go", StartLine: 2, Score: 4.0},
		{Path: "file1.go", StartLine: 3, Score: 3.0},
		{Path: "file2.go", StartLine: 1, Score: 2.0},
	}

	limited := applyPerFileLimit(results, 2)
	assert.Len(t, limited, 3)

	count := 0
	for _, r := range limited {
		if r.Path == "file1.go" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestIsTestFile(t *testing.T) {
	assert.True(t, isTestFile("src/main.test.ts"))
	assert.True(t, isTestFile("src/component.spec.js"))
	assert.True(t, isTestFile("src/__tests__/utils.js"))
	assert.False(t, isTestFile("src/main.go"))
}

func TestIsDocOrConfig(t *testing.T) {
	assert.True(t, isDocOrConfig("README.md"))
	assert.True(t, isDocOrConfig("package.json"))
	assert.True(t, isDocOrConfig("config.yaml"))
	assert.True(t, isDocOrConfig("docs/guide.md"))
	assert.False(t, isDocOrConfig("src/main.go"))
}

package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/store"
)

// fakeStore is a minimal store.Store stand-in that just echoes back
// pre-seeded results from Search, ignoring persistence concerns.
type fakeStore struct {
	results []*store.SearchResult
	status  store.IndexStatus
}

func (f *fakeStore) InsertBatch(context.Context, []store.VectorRecord) error { return nil }

func (f *fakeStore) Search(ctx context.Context, params store.SearchParams) (*store.SearchResponse, error) {
	results := f.results
	if params.Limit > 0 && len(results) > params.Limit {
		results = results[:params.Limit]
	}
	status := f.status
	if status == "" {
		status = store.IndexStatusReady
	}
	return &store.SearchResponse{Results: results, Status: status}, nil
}

func (f *fakeStore) DeleteFile(context.Context, string) error         { return nil }
func (f *fakeStore) DeleteFiles(context.Context, []string) error      { return nil }
func (f *fakeStore) GetFileHashes(context.Context) (map[string]string, error) {
	return nil, nil
}
func (f *fakeStore) ListFiles(context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) IsEmpty(context.Context) (bool, error)       { return len(f.results) == 0, nil }
func (f *fakeStore) CreateFTSIndex(context.Context) error        { return nil }
func (f *fakeStore) CreateVectorIndex(context.Context) error     { return nil }
func (f *fakeStore) GetInfo(context.Context) (*store.IndexInfo, error) {
	return &store.IndexInfo{}, nil
}
func (f *fakeStore) Save(string) error { return nil }
func (f *fakeStore) Load(string) error { return nil }
func (f *fakeStore) Close() error      { return nil }

var _ store.Store = (*fakeStore)(nil)

func TestEngineSearch_RanksAndTruncates(t *testing.T) {
	st := &fakeStore{
		results: []*store.SearchResult{
			{Path: "a.go", StartLine: 1, Score: 0.9, ChunkType: store.ChunkTypeFunction},
			{Path: "a.test.go", StartLine: 1, Score: 0.9, ChunkType: store.ChunkTypeFunction},
			{Path: "README.md", StartLine: 1, Score: 0.95, ChunkType: store.ChunkTypeOther},
		},
	}
	engine := NewEngine(st, embed.NewStaticEmbedder())

	resp, err := engine.Search(context.Background(), Params{Query: "add two numbers", Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	// a.go gets the structural boost (0.9*1.25=1.125) and should outrank both
	// the penalized test file and the boosted-down doc file.
	require.Equal(t, "a.go", resp.Results[0].Path)
}

func TestEngineSearch_PerFileLimitDiversifies(t *testing.T) {
	st := &fakeStore{
		results: []*store.SearchResult{
			{Path: "a.go", StartLine: 1, Score: 0.9},
			{Path: "a.go", StartLine: 10, Score: 0.8},
			{Path: "a.go", StartLine: 20, Score: 0.7},
			{Path: "b.go", StartLine: 1, Score: 0.6},
		},
	}
	engine := NewEngine(st, embed.NewStaticEmbedder())

	resp, err := engine.Search(context.Background(), Params{Query: "x", Limit: 10, PerFileLimit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
}

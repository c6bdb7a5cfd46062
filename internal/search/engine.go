// Package search implements the query-time half of the retrieval pipeline:
// encode the query, fetch candidates from the store, then rank them
// (SPEC_FULL §4.5/§4.6).
package search

import (
	"context"
	"fmt"

	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/store"
)

// Engine answers natural-language queries against one repository's Store.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
}

// NewEngine builds a search engine over an already-opened store and embedder.
func NewEngine(st store.Store, embedder embed.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// Params bundles one query's arguments (SPEC_FULL §4.5 search()).
type Params struct {
	Query        string
	Limit        int
	PerFileLimit int
	PathFilter   string
	Rerank       bool
}

// Search executes the spec's six-step search contract:
//  1. encode the query into a dense vector and a ColBERT query matrix
//  2. ask the store for 2*limit candidates
//  3. apply structural boosting
//  4. sort by score descending
//  5. apply per-file diversification, if requested, and re-sort
//  6. truncate to limit
func (e *Engine) Search(ctx context.Context, p Params) (*store.SearchResponse, error) {
	if p.Limit <= 0 {
		p.Limit = 10
	}

	q, err := e.embedder.EncodeQuery(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	resp, err := e.store.Search(ctx, store.SearchParams{
		DenseVector:  q.Dense,
		ColbertQuery: q.Colbert,
		Text:         p.Query,
		PathFilter:   p.PathFilter,
		Rerank:       p.Rerank,
		Limit:        2 * p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("store search: %w", err)
	}

	results := deduplicate(resp.Results)
	applyStructuralBoost(results)
	sortByScoreDescending(results)

	if p.PerFileLimit > 0 {
		results = applyPerFileLimit(results, p.PerFileLimit)
	}

	if len(results) > p.Limit {
		results = results[:p.Limit]
	}

	return &store.SearchResponse{
		Results:  results,
		Status:   resp.Status,
		Progress: resp.Progress,
	}, nil
}

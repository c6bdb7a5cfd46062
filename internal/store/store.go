package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/can1357/smgrep/internal/embed"
)

// RepoStore is the spec's Store contract (SPEC_FULL §4.4/§4.5/§4.7): one handle
// per repository composing dense ANN search (HNSWStore), keyword search
// (BM25Index), and MaxSim ColBERT reranking over a shared set of VectorRecords.
//
// Grounded on the teacher's split between VectorStore/BM25Index/MetadataStore,
// generalized here into a single façade because the spec's data model collapses
// project/file/chunk/symbol bookkeeping into one VectorRecord per chunk.
type RepoStore struct {
	mu sync.RWMutex

	vectors VectorStore
	text    BM25Index

	records map[string]VectorRecord // id -> record, carries colbert bytes + content
	model   string
	dims    int

	closed bool
}

// NewRepoStore creates a store backed by an HNSW dense index and a BM25 text
// index. model/dims are recorded for GetInfo/dimension-mismatch checks.
func NewRepoStore(vectors VectorStore, text BM25Index, model string, dims int) *RepoStore {
	return &RepoStore{
		vectors: vectors,
		text:    text,
		records: make(map[string]VectorRecord),
		model:   model,
		dims:    dims,
	}
}

var _ Store = (*RepoStore)(nil)

// InsertBatch upserts records into the dense index, the text index, and the
// record map in one pass. An existing ID is replaced (delete-then-insert,
// SPEC_FULL §3 Lifecycle).
func (s *RepoStore) InsertBatch(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	docs := make([]*Document, len(records))

	for i, rec := range records {
		ids[i] = rec.ID
		vecs[i] = rec.Dense
		docs[i] = &Document{ID: rec.ID, Content: rec.Content}
		s.records[rec.ID] = rec
	}

	if err := s.vectors.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("insert into vector index: %w", err)
	}
	if err := s.text.Index(ctx, docs); err != nil {
		return fmt.Errorf("insert into text index: %w", err)
	}

	return nil
}

// Search implements SPEC_FULL §4.5 step 2: dense ANN recall merged with BM25
// text recall, then MaxSim rerank over the surviving candidates' ColBERT
// matrices when params.Rerank is set.
func (s *RepoStore) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	recall := limit * 2

	candidateIDs := make(map[string]struct{})

	if len(params.DenseVector) > 0 {
		denseHits, err := s.vectors.Search(ctx, params.DenseVector, recall)
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
		for _, h := range denseHits {
			candidateIDs[h.ID] = struct{}{}
		}
	}

	if params.Text != "" {
		textHits, err := s.text.Search(ctx, params.Text, recall)
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		for _, h := range textHits {
			candidateIDs[h.DocID] = struct{}{}
		}
	}

	results := make([]*SearchResult, 0, len(candidateIDs))
	for id := range candidateIDs {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if params.PathFilter != "" && !pathMatches(rec.Path, params.PathFilter) {
			continue
		}

		var score float32
		if params.Rerank && len(params.ColbertQuery) > 0 && len(rec.Colbert) > 0 {
			score = embed.MaxSim(params.ColbertQuery, rec.Colbert, rec.ColbertScale, rec.ColbertDim)
		} else if len(params.DenseVector) > 0 {
			score = dotProduct(params.DenseVector, rec.Dense)
		}

		results = append(results, &SearchResult{
			Path:      rec.Path,
			Content:   rec.Content,
			Score:     score,
			StartLine: rec.StartLine,
			NumLines:  rec.EndLine - rec.StartLine,
			ChunkType: rec.ChunkType,
			IsAnchor:  rec.IsAnchor,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > recall {
		results = results[:recall]
	}

	return &SearchResponse{Results: results, Status: IndexStatusReady}, nil
}

// pathMatches reports whether path is under, or equal to, filter.
func pathMatches(path, filter string) bool {
	if path == filter {
		return true
	}
	return len(path) > len(filter) && path[:len(filter)] == filter
}

// dotProduct computes the raw dot product of two equal-length vectors,
// used as a fallback relevance score when rerank is not requested.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// DeleteFile removes every record for one path.
func (s *RepoStore) DeleteFile(ctx context.Context, path string) error {
	return s.DeleteFiles(ctx, []string{path})
}

// DeleteFiles removes every record for a set of paths.
func (s *RepoStore) DeleteFiles(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	pathSet := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		pathSet[p] = struct{}{}
	}

	var ids []string
	for id, rec := range s.records {
		if _, ok := pathSet[rec.Path]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from vector index: %w", err)
	}
	if err := s.text.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from text index: %w", err)
	}
	for _, id := range ids {
		delete(s.records, id)
	}

	return nil
}

// GetFileHashes returns the last-indexed hash recorded against each path,
// derived from whichever record was most recently inserted for that path.
func (s *RepoStore) GetFileHashes(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[string]string)
	for _, rec := range s.records {
		hashes[rec.Path] = rec.Hash
	}
	return hashes, nil
}

// ListFiles returns every distinct path with at least one record.
func (s *RepoStore) ListFiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range s.records {
		seen[rec.Path] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// IsEmpty reports whether the store holds zero records.
func (s *RepoStore) IsEmpty(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) == 0, nil
}

// CreateFTSIndex is a no-op for the in-process BM25Index backends (sqlite FTS5 and
// bleve each maintain their own index incrementally on Index()); kept as an
// explicit step so the store's contract matches the spec even though, for these
// backends, there is no separate build phase.
func (s *RepoStore) CreateFTSIndex(ctx context.Context) error {
	return nil
}

// CreateVectorIndex is a no-op for HNSWStore (graph insertion is incremental);
// kept for the same reason as CreateFTSIndex.
func (s *RepoStore) CreateVectorIndex(ctx context.Context) error {
	return nil
}

// GetInfo reports index metadata for the `status`/`index info` surfaces.
func (s *RepoStore) GetInfo(ctx context.Context) (*IndexInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]struct{})
	for _, rec := range s.records {
		paths[rec.Path] = struct{}{}
	}

	return &IndexInfo{
		IndexModel:      s.model,
		IndexDimensions: s.dims,
		ChunkCount:      len(s.records),
		FileCount:       len(paths),
	}, nil
}

// recordsFile is the on-disk gob shape for the record map (SPEC_FULL §6
// on-disk layout, data/<store_id>/records.gob).
type recordsFile struct {
	Model   string
	Dims    int
	Records map[string]VectorRecord
}

// Save persists the vector index, text index, and record map under dir. The
// text index must already be bound to its final on-disk location (constructed
// via NewBM25IndexWithBackend(filepath.Join(dir, "bm25"), ...)) — its own
// Save/Load operate on the already-open connection, not on a path passed here.
func (s *RepoStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	if err := s.vectors.Save(filepath.Join(dir, "vectors.hnsw")); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if err := s.text.Save(filepath.Join(dir, "bm25")); err != nil {
		return fmt.Errorf("save text index: %w", err)
	}

	recordsPath := filepath.Join(dir, "records.gob")
	tmp := recordsPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create records file: %w", err)
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(recordsFile{Model: s.model, Dims: s.dims, Records: s.records}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode records: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close records file: %w", err)
	}
	if err := os.Rename(tmp, recordsPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename records file: %w", err)
	}

	return nil
}

// Load restores the vector index, text index, and record map from dir.
func (s *RepoStore) Load(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.vectors.Load(filepath.Join(dir, "vectors.hnsw")); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	if err := s.text.Load(filepath.Join(dir, "bm25")); err != nil {
		return fmt.Errorf("load text index: %w", err)
	}

	recordsPath := filepath.Join(dir, "records.gob")
	f, err := os.Open(recordsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	var onDisk recordsFile
	if err := gob.NewDecoder(f).Decode(&onDisk); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}

	s.model = onDisk.Model
	s.dims = onDisk.Dims
	if onDisk.Records != nil {
		s.records = onDisk.Records
	}

	return nil
}

// Close releases the vector and text index resources.
func (s *RepoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.vectors.Close(); err != nil {
		firstErr = err
	}
	if err := s.text.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Package store provides vector storage (HNSW), keyword search (BM25), and file
// metadata persistence. This is the persistence layer for all indexed data.
package store

import (
	"context"
	"fmt"
)

// ChunkType mirrors the chunker's classification for a stored chunk (SPEC_FULL §3).
type ChunkType string

const (
	ChunkTypeFunction  ChunkType = "function"
	ChunkTypeClass     ChunkType = "class"
	ChunkTypeInterface ChunkType = "interface"
	ChunkTypeMethod    ChunkType = "method"
	ChunkTypeTypeAlias ChunkType = "type_alias"
	ChunkTypeBlock     ChunkType = "block"
	ChunkTypeOther     ChunkType = "other"
)

// VectorRecord is the persisted unit in the store: a prepared chunk plus its
// dense and ColBERT embeddings (SPEC_FULL §3 "Vector record").
type VectorRecord struct {
	ID           string // "{path}:{chunk_index}" or "{path}:anchor"
	Path         string // absolute path
	Hash         string // hex SHA-256 of the file's bytes at index time
	ChunkIndex   int    // -1 for anchor, >=1 for ordinary chunks
	IsAnchor     bool
	ChunkType    ChunkType
	Context      string // joined outer-scope labels
	Content      string // full chunk content including context
	StartLine    int    // 0-based
	EndLine      int    // half-open
	ContextPrev  string // neighbouring chunk content, retrieval-time only
	ContextNext  string

	Dense        []float32 // length D_dense, L2-normalized
	Colbert      []byte    // T*D_colbert signed-int8 bytes, row-major
	ColbertScale float64   // dequantization multiplier
	ColbertDim   int       // D_colbert, needed to reshape Colbert into rows
}

// SearchResult is a single ranked hit returned by the store and, after ranking,
// by the search engine (SPEC_FULL §6 IPC frame format).
type SearchResult struct {
	Path      string
	Content   string
	Score     float32
	StartLine int
	NumLines  int
	ChunkType ChunkType
	IsAnchor  bool
}

// IndexStatus reports whether a repository's index is ready to serve queries.
type IndexStatus string

const (
	IndexStatusReady    IndexStatus = "ready"
	IndexStatusIndexing IndexStatus = "indexing"
)

// SearchResponse is the store's reply to a search query (SPEC_FULL §4.5/§6).
type SearchResponse struct {
	Results  []*SearchResult
	Status   IndexStatus
	Progress int // 0-100, only meaningful when Status == IndexStatusIndexing
}

// SearchParams bundles the arguments the search engine passes to the store
// (SPEC_FULL §4.5 step 2).
type SearchParams struct {
	DenseVector  []float32
	ColbertQuery [][]float32
	Text         string
	PathFilter   string
	Rerank       bool
	Limit        int
}

// IndexInfo summarizes a repository's index for the `status`/`index info` surfaces.
type IndexInfo struct {
	Location        string
	ProjectRoot      string
	IndexModel       string
	IndexDimensions  int
	ChunkCount       int
	FileCount        int
	IndexSizeBytes   int64
	BM25SizeBytes    int64
	VectorSizeBytes  int64
	CurrentModel     string
	CurrentDimensions int
	Compatible       bool
}

// ErrDimensionMismatch indicates vector dimension mismatch between a stored index
// and the currently configured embedder.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'smgrep reindex --force')", e.Expected, e.Got)
}

// Store is the spec's persistence contract (SPEC_FULL §4.4/§4.5): a single
// per-repository handle composing dense ANN search, BM25 keyword search, and
// MaxSim ColBERT reranking over one set of VectorRecords.
type Store interface {
	// InsertBatch upserts records; an existing ID is replaced.
	InsertBatch(ctx context.Context, records []VectorRecord) error

	// Search returns up to params.Limit candidates ranked by dense similarity,
	// optionally reranked by MaxSim over the ColBERT matrices (SPEC_FULL §4.7)
	// when params.Rerank is set, merged with BM25 text recall.
	Search(ctx context.Context, params SearchParams) (*SearchResponse, error)

	// DeleteFile removes every record for one path.
	DeleteFile(ctx context.Context, path string) error

	// DeleteFiles removes every record for a set of paths.
	DeleteFiles(ctx context.Context, paths []string) error

	// GetFileHashes returns the last-indexed hash recorded against each path,
	// used as a fallback when the meta store has no entry for that path
	// (SPEC_FULL §4.4 step 4).
	GetFileHashes(ctx context.Context) (map[string]string, error)

	// ListFiles returns every distinct path with at least one record.
	ListFiles(ctx context.Context) ([]string, error)

	// IsEmpty reports whether the store holds zero records.
	IsEmpty(ctx context.Context) (bool, error)

	// CreateFTSIndex / CreateVectorIndex (re)build the keyword and ANN indices.
	// Called once at the end of a sync that inserted at least one record
	// (SPEC_FULL §4.4 step 8).
	CreateFTSIndex(ctx context.Context) error
	CreateVectorIndex(ctx context.Context) error

	// GetInfo reports index metadata for the `status`/`index info` surfaces.
	GetInfo(ctx context.Context) (*IndexInfo, error)

	// Save persists the store to disk under dir. Load restores it.
	Save(dir string) error
	Load(dir string) error

	Close() error
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// Document represents a document to be indexed in BM25.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Index provides keyword search using BM25 algorithm.
type BM25Index interface {
	// Index adds documents to the index
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, scored by BM25
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes documents from index
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index (for consistency checks)
	AllIDs() ([]string, error)

	// Stats returns index statistics
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (384 per SPEC_FULL §4.3)
	Dimensions int

	// Quantization is the vector precision: "f32", "f16", "i8" (default: "f16")
	Quantization string

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 32)
	M int

	// EfConstruction is HNSW build-time search width (default: 128)
	EfConstruction int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using HNSW algorithm. This is the
// low-level ANN primitive; Store composes one of these with a BM25Index and
// the record/metadata bookkeeping the spec's Store contract needs.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store (for consistency checks)
	AllIDs() []string

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

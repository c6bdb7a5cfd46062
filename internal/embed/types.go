package embed

import (
	"context"
	"math"
	"time"
)

// Dimensions fixed by the data model: a dense sentence vector and a per-token ColBERT
// matrix width.
const (
	DenseDimensions   = 384
	ColbertDimensions = 128
)

// Sequence-length budgets per encoding path.
const (
	DenseMaxTokens   = 256
	ColbertMaxTokens = 512
)

// Batch size bounds (SPEC_FULL §4.3 Batching; RSGREP_BATCH_SIZE env var honors these).
const (
	DefaultBatchSize = 48
	MaxBatchSize     = 96
)

const (
	// DefaultWarmTimeout is the per-batch embedder deadline once a model is loaded.
	DefaultWarmTimeout = 60 * time.Second
	// DefaultColdTimeout is the deadline for the first call, which may also load the model.
	DefaultColdTimeout = 180 * time.Second

	// StaticDimensions is the embedding dimension for the deterministic fallback embedder.
	StaticDimensions = DenseDimensions
)

// Retry and thermal-management defaults shared by HTTP-backed embedder providers.
const (
	DefaultMaxRetries = 3

	DefaultInterBatchDelay = 0 * time.Millisecond
	MaxInterBatchDelay     = 5 * time.Second

	DefaultTimeoutProgression = 1.5
	MaxTimeoutProgression     = 3.0

	DefaultRetryTimeoutMultiplier = 1.0
	MaxRetryTimeoutMultiplier     = 2.0

	// ModelUnloadThreshold is the duration after which a remote model is considered
	// "cold" again, so the next call uses DefaultColdTimeout instead of DefaultWarmTimeout.
	ModelUnloadThreshold = 5 * time.Minute
)

// HybridEmbedding is the per-document embedding pair produced by compute_hybrid: a dense
// L2-normalized sentence vector plus a quantized, per-token ColBERT matrix with its scale.
type HybridEmbedding struct {
	Dense        []float32
	Colbert      []byte // T * ColbertDimensions signed-int8 bytes, row-major
	ColbertScale float64
}

// QueryEmbedding is the query-time encoding: dense vector plus an unquantized ColBERT
// matrix (queries are never quantized — SPEC_FULL §9 "Quantization asymmetry").
type QueryEmbedding struct {
	Dense   []float32
	Colbert [][]float32 // T_q rows of ColbertDimensions
}

// Embedder computes hybrid embeddings for documents and encodes queries. Implementations
// hold a single underlying model and serialize forward passes internally; the first call
// triggers a double-checked lazy model load (SPEC_FULL §4.3 Readiness, §9 Shared model state).
type Embedder interface {
	ComputeHybrid(ctx context.Context, texts []string) ([]HybridEmbedding, error)
	EncodeQuery(ctx context.Context, text string) (QueryEmbedding, error)

	// Ready reports whether the underlying model is loaded.
	Ready() bool

	Dimensions() int
	ModelName() string
	Close() error
}

// normalizeVector L2-normalizes v in place and returns it. A zero vector is returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	for i, val := range v {
		v[i] = float32(float64(val) / magnitude)
	}
	return v
}

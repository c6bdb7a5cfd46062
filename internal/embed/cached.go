package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize is the default number of query embeddings to cache.
const DefaultEmbeddingCacheSize = 1000

// CachedEmbedder wraps an Embedder with an LRU cache over EncodeQuery results, so a
// repeated search query skips the network/model round trip entirely. Document embedding
// (ComputeHybrid) is not cached since sync already de-duplicates via content hash
// (SPEC_FULL §4.5 incremental sync).
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, QueryEmbedding]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping inner with the given cache size.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, QueryEmbedding](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// NewCachedEmbedderWithDefaults creates a cached embedder with default settings.
func NewCachedEmbedderWithDefaults(inner Embedder) *CachedEmbedder {
	return NewCachedEmbedder(inner, DefaultEmbeddingCacheSize)
}

// cacheKey derives a fixed-length key from text and model so cache entries never
// collide across a provider switch.
func (c *CachedEmbedder) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelName()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ComputeHybrid passes through to the inner embedder uncached.
func (c *CachedEmbedder) ComputeHybrid(ctx context.Context, texts []string) ([]HybridEmbedding, error) {
	return c.inner.ComputeHybrid(ctx, texts)
}

// EncodeQuery returns the cached query embedding if present, otherwise computes and
// caches it.
func (c *CachedEmbedder) EncodeQuery(ctx context.Context, text string) (QueryEmbedding, error) {
	key := c.cacheKey(text)
	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}

	emb, err := c.inner.EncodeQuery(ctx, text)
	if err != nil {
		return QueryEmbedding{}, err
	}

	c.cache.Add(key, emb)
	return emb, nil
}

// Ready passes through to the inner embedder.
func (c *CachedEmbedder) Ready() bool {
	return c.inner.Ready()
}

// Dimensions passes through to the inner embedder.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName passes through to the inner embedder.
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Close releases resources and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying embedder, giving callers access to embedder-specific
// features (e.g. progress callbacks) not part of the Embedder interface.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

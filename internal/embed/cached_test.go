package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	computeCalls atomic.Int64
	queryCalls   atomic.Int64
	dimensions   int
	modelName    string
	returnedRow  []float32
}

func newMockEmbedder(dims int) *mockEmbedder {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}
	return &mockEmbedder{
		dimensions:  dims,
		modelName:   "mock-model",
		returnedRow: vec,
	}
}

func (m *mockEmbedder) ComputeHybrid(ctx context.Context, texts []string) ([]HybridEmbedding, error) {
	m.computeCalls.Add(1)
	out := make([]HybridEmbedding, len(texts))
	for i := range texts {
		out[i] = HybridEmbedding{Dense: m.returnedRow, ColbertScale: 1.0}
	}
	return out, nil
}

func (m *mockEmbedder) EncodeQuery(ctx context.Context, text string) (QueryEmbedding, error) {
	m.queryCalls.Add(1)
	return QueryEmbedding{Dense: m.returnedRow}, nil
}

func (m *mockEmbedder) Ready() bool { return true }

func (m *mockEmbedder) Dimensions() int { return m.dimensions }

func (m *mockEmbedder) ModelName() string { return m.modelName }

func (m *mockEmbedder) Close() error { return nil }

func TestCachedEmbedder_ImplementsEmbedderInterface(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	var _ Embedder = cached
}

func TestCachedEmbedder_CacheHit_ReturnsWithoutCallingInner(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	text := "func add(a, b int) int { return a + b }"

	result1, err1 := cached.EncodeQuery(ctx, text)
	result2, err2 := cached.EncodeQuery(ctx, text)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(1), inner.queryCalls.Load(), "inner should be called once")
	assert.Equal(t, result1, result2, "cached results should match")
}

func TestCachedEmbedder_CacheMiss_CallsInnerForNewText(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	_, err1 := cached.EncodeQuery(ctx, "text one")
	_, err2 := cached.EncodeQuery(ctx, "text two")
	_, err3 := cached.EncodeQuery(ctx, "text three")

	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	assert.Equal(t, int64(3), inner.queryCalls.Load(), "inner should be called three times")
}

func TestCachedEmbedder_Dimensions_ReturnsInnerDimensions(t *testing.T) {
	inner := newMockEmbedder(1024)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	assert.Equal(t, 1024, cached.Dimensions())
}

func TestCachedEmbedder_ModelName_ReturnsInnerModelName(t *testing.T) {
	inner := newMockEmbedder(384)
	inner.modelName = "custom-model-v2"
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	assert.Equal(t, "custom-model-v2", cached.ModelName())
}

func TestCachedEmbedder_Ready_ReturnsInnerReady(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	assert.True(t, cached.Ready())
}

func TestCachedEmbedder_ComputeHybrid_NotCached(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	texts := []string{"text1", "text2", "text3"}

	_, err := cached.ComputeHybrid(ctx, texts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.computeCalls.Load())

	_, err = cached.ComputeHybrid(ctx, []string{"text1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.computeCalls.Load(), "ComputeHybrid is never cached")
}

func TestCachedEmbedder_Close_ClosesInner(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)

	err := cached.Close()
	assert.NoError(t, err)
}

func TestNewCachedEmbedderWithDefaults_UsesDefaultCacheSize(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedderWithDefaults(inner)
	defer func() { _ = cached.Close() }()

	_, err := cached.EncodeQuery(context.Background(), "test")
	require.NoError(t, err)
}

func TestCachedEmbedder_CacheEviction_OldestEvictedFirst(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 3)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()

	_, _ = cached.EncodeQuery(ctx, "text1")
	_, _ = cached.EncodeQuery(ctx, "text2")
	_, _ = cached.EncodeQuery(ctx, "text3")
	_, _ = cached.EncodeQuery(ctx, "text4")

	inner.queryCalls.Store(0)

	_, err := cached.EncodeQuery(ctx, "text1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.queryCalls.Load(), "evicted text should require new embedding")

	inner.queryCalls.Store(0)
	_, _ = cached.EncodeQuery(ctx, "text3")
	_, _ = cached.EncodeQuery(ctx, "text4")
	assert.Equal(t, int64(0), inner.queryCalls.Load(), "recent texts should be cached")
}

func TestCachedEmbedder_Inner_ReturnsUnderlyingEmbedder(t *testing.T) {
	inner := newMockEmbedder(384)
	inner.modelName = "test-model-for-inner"
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	gotInner := cached.Inner()

	assert.NotNil(t, gotInner)
	assert.Equal(t, inner, gotInner, "Inner() should return the wrapped embedder")
	assert.Equal(t, "test-model-for-inner", gotInner.ModelName())
}

func TestCachedEmbedder_ConcurrentAccess_NoRace(t *testing.T) {
	inner := newMockEmbedder(384)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e"}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				text := texts[j%len(texts)]
				_, _ = cached.EncodeQuery(ctx, text)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

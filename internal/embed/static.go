package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates hybrid embeddings using a deterministic hash-based approach.
// It requires no network access and no model download, and is the embedder of last
// resort when no HTTP embedding provider is reachable (SPEC_FULL §4.3 fallback chain).
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// programmingStopWords contains common programming language keywords to filter out.
var programmingStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// Weights for dense vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// ComputeHybrid implements Embedder.
func (e *StaticEmbedder) ComputeHybrid(_ context.Context, texts []string) ([]HybridEmbedding, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	out := make([]HybridEmbedding, len(texts))
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		dense := normalizeVector(denseHashVector(trimmed))
		rows := colbertHashRows(trimmed)
		colbertBytes, scale := QuantizeColbert(rows)
		out[i] = HybridEmbedding{Dense: dense, Colbert: colbertBytes, ColbertScale: scale}
	}
	return out, nil
}

// EncodeQuery implements Embedder. Queries keep their ColBERT rows unquantized
// (SPEC_FULL §9 "Quantization asymmetry").
func (e *StaticEmbedder) EncodeQuery(_ context.Context, text string) (QueryEmbedding, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return QueryEmbedding{}, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	dense := normalizeVector(denseHashVector(trimmed))
	rows := colbertHashRows(trimmed)
	for i := range rows {
		rows[i] = normalizeVector(rows[i])
	}
	return QueryEmbedding{Dense: dense, Colbert: rows}, nil
}

// denseHashVector creates a hash-based sentence vector from tokens and char n-grams.
func denseHashVector(text string) []float32 {
	vector := make([]float32, DenseDimensions)
	if text == "" {
		return vector
	}

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, DenseDimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, DenseDimensions)] += ngramWeight
	}

	return vector
}

// colbertHashRows builds one ColbertDimensions row per token (capped at
// ColbertMaxTokens), each row combining the token's own hash with its trigram
// hashes so that near-duplicate tokens produce correlated rows.
func colbertHashRows(text string) [][]float32 {
	if text == "" {
		return nil
	}

	tokens := filterStopWords(tokenize(text))
	if len(tokens) > ColbertMaxTokens {
		tokens = tokens[:ColbertMaxTokens]
	}

	rows := make([][]float32, 0, len(tokens))
	for _, token := range tokens {
		row := make([]float32, ColbertDimensions)
		row[hashToIndex(token, ColbertDimensions)] += 1.0
		for _, ngram := range extractNgrams(token, ngramSize) {
			row[hashToIndex(ngram, ColbertDimensions)] += ngramWeight
		}
		rows = append(rows, row)
	}
	return rows
}

// tokenize splits text into tokens (code-aware: camelCase/snake_case split).
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitCodeToken splits camelCase and snake_case identifiers.
func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase identifiers, treating acronym boundaries too.
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !programmingStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Ready reports whether the embedder is usable (always true until closed).
func (e *StaticEmbedder) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Dimensions returns the dense embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

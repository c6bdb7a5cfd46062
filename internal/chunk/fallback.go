package chunk

import (
	"context"
	"strings"
)

// FallbackChunker is the byte-safe sliding-window chunker used when no grammar is
// available for a file's extension, or when the grammar path finds no definitions.
type FallbackChunker struct{}

// NewFallbackChunker creates a fallback chunker.
func NewFallbackChunker() *FallbackChunker {
	return &FallbackChunker{}
}

// Chunk implements Chunker.
func (c *FallbackChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	lines := strings.Split(content, "\n")
	context := []string{"File: " + file.Path}

	stride := MaxLines - OverlapLines
	if stride < 1 {
		stride = 1
	}

	var chunks []*Chunk
	i := 0
	for i < len(lines) {
		end := i + MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		subLines := lines[i:end]
		if len(subLines) == 0 {
			break
		}

		subContent := strings.Join(subLines, "\n")
		if len(subContent) <= MaxChars {
			chunks = append(chunks, NewChunk(subContent, i, end, ChunkTypeBlock, context))
		} else {
			chunks = append(chunks, splitByChars(subContent, i, ChunkTypeBlock, context)...)
		}

		i += stride
	}

	return chunks, nil
}

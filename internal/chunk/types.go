package chunk

import "context"

// Size bounds for chunk content (constants mirrored from the sliding-window fallback and
// used as hard caps for every chunk regardless of which path produced it).
const (
	MaxChars     = 2000
	MaxLines     = 75
	OverlapChars = 200
	OverlapLines = 10
)

// ChunkType is the structural classification of a chunk.
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

// Chunk is a retrievable unit of source content produced by the chunker or the anchor
// builder. start_line/end_line are 0-indexed and half-open at the end.
type Chunk struct {
	Content    string
	StartLine  int
	EndLine    int
	ChunkType  ChunkType
	Context    []string // outer scopes first, e.g. "File: foo.ts", "Class: Bar", "Method: baz"
	ChunkIndex int      // -1 for anchor; assigned >=1 for ordinary chunks at sync time
	IsAnchor   bool
}

// NewChunk builds an ordinary (non-anchor) chunk.
func NewChunk(content string, startLine, endLine int, chunkType ChunkType, context []string) *Chunk {
	return &Chunk{
		Content:   content,
		StartLine: startLine,
		EndLine:   endLine,
		ChunkType: chunkType,
		Context:   append([]string(nil), context...),
		IsAnchor:  false,
	}
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path    string // relative or absolute path, used only for context labels
	Content []byte
}

// Chunker splits a file into semantic chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig holds configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// DefinitionTypes are node kinds that are always treated as definitions
	// (GLOSSARY "Definition kinds").
	DefinitionTypes []string

	// ValueBindingTypes are node kinds for top-level value bindings (const/var/let-style
	// declarations) that are promoted to definitions when their RHS looks like a function,
	// arrow function, class literal, or UPPER_SNAKE constant.
	ValueBindingTypes []string

	// NameFields lists child node types, in priority order, used to read a definition's name.
	NameFields []string
}

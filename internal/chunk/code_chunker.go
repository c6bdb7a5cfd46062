package chunk

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// CodeChunker splits source files into semantic chunks, backed by a tree-sitter grammar
// when one is available for the file's extension and falling back to a byte-safe sliding
// window otherwise.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	fallback *FallbackChunker
}

// NewCodeChunker creates a chunker using the default language registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		fallback: NewFallbackChunker(),
	}
}

// Chunk splits a file into semantic chunks, sorted by (start_line, end_line) ascending.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	ext := filepath.Ext(file.Path)
	config, ok := c.registry.GetByExtension(ext)
	if !ok {
		return c.fallback.Chunk(ctx, file)
	}

	lang, _ := c.registry.GetTreeSitterLanguage(config.Name)
	if lang == nil {
		return c.fallback.Chunk(ctx, file)
	}

	tree, err := c.parser.Parse(ctx, file.Content, config.Name)
	if err != nil || tree == nil || tree.Root == nil {
		// ParseFailed is downgraded to a warning at the caller; fall back silently here.
		return c.fallback.Chunk(ctx, file)
	}

	fileLabel := "File: " + file.Path
	chunks := walkForChunks(tree.Root, file.Content, config, []string{fileLabel})
	if len(chunks) == 0 {
		return c.fallback.Chunk(ctx, file)
	}

	chunks = enforceSizeBounds(chunks)

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})

	return chunks, nil
}

// walkForChunks walks the top-level children of node, emitting one chunk per definition
// (recursing into each definition's children for nested definitions) and Block chunks for
// the non-definition gaps between definitions, including the tail.
func walkForChunks(node *Node, source []byte, config *LanguageConfig, context []string) []*Chunk {
	var chunks []*Chunk

	gapStart := node.StartByte
	flushGap := func(end uint32) {
		if end <= gapStart {
			return
		}
		text := string(source[gapStart:end])
		if strings.TrimSpace(text) == "" {
			return
		}
		startLine, endLine := byteRangeToLines(source, gapStart, end)
		chunks = append(chunks, NewChunk(text, startLine, endLine, ChunkTypeBlock, context))
	}

	for _, child := range node.Children {
		def, name := unwrapDefinition(child, config, source)
		if def == nil {
			continue
		}

		flushGap(def.StartByte)

		chunkType := classifyChunkType(def.Type, config)
		label := definitionLabel(chunkType, name)
		childContext := append(append([]string(nil), context...), label)

		startLine, endLine := byteRangeToLines(source, def.StartByte, def.EndByte)
		content := def.GetContent(source)
		chunk := NewChunk(content, startLine, endLine, chunkType, childContext)
		chunks = append(chunks, chunk)

		// Recurse into the definition's own children so nested definitions (methods inside
		// a class, closures inside a function) also yield their own chunks.
		chunks = append(chunks, walkForChunks(def, source, config, childContext)...)

		gapStart = def.EndByte
	}

	flushGap(node.EndByte)

	return chunks
}

// unwrapDefinition reports whether node (after unwrapping a transparent export-like
// wrapper) is a definition, returning the unwrapped node and its extracted name.
func unwrapDefinition(node *Node, config *LanguageConfig, source []byte) (*Node, string) {
	n := node
	if isExportWrapper(n.Type) {
		inner := firstNonKeywordChild(n)
		if inner == nil {
			return nil, ""
		}
		n = inner
	}

	if isDefinitionType(n.Type, config) {
		return n, extractName(n, source)
	}

	if isValueBindingType(n.Type, config) {
		if name, ok := promotedValueBinding(n, source); ok {
			return n, name
		}
	}

	return nil, ""
}

func isExportWrapper(nodeType string) bool {
	switch nodeType {
	case "export_statement", "export_declaration":
		return true
	default:
		return false
	}
}

func firstNonKeywordChild(n *Node) *Node {
	for _, child := range n.Children {
		switch child.Type {
		case "export", "default":
			continue
		}
		return child
	}
	return nil
}

func isDefinitionType(nodeType string, config *LanguageConfig) bool {
	for _, t := range config.DefinitionTypes {
		if t == nodeType {
			return true
		}
	}
	return definitionKinds[nodeType]
}

func isValueBindingType(nodeType string, config *LanguageConfig) bool {
	for _, t := range config.ValueBindingTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

// promotedValueBinding checks whether a top-level value binding's right-hand side looks
// like an arrow function, inline function literal, class literal, or an UPPER_SNAKE
// constant, promoting it to a definition if so.
func promotedValueBinding(n *Node, source []byte) (string, bool) {
	var declarator *Node
	n.Walk(func(child *Node) bool {
		switch child.Type {
		case "variable_declarator", "assignment":
			if declarator == nil {
				declarator = child
			}
			return false
		}
		return true
	})
	if declarator == nil {
		declarator = n
	}

	name := extractName(declarator, source)

	hasFunctionLiteral := false
	declarator.Walk(func(child *Node) bool {
		switch child.Type {
		case "arrow_function", "function", "function_expression", "class", "class_expression":
			hasFunctionLiteral = true
			return false
		}
		return true
	})

	if hasFunctionLiteral {
		return name, true
	}

	if name != "" && isUpperSnake(name) {
		return name, true
	}

	return "", false
}

func isUpperSnake(s string) bool {
	hasUpper := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r == '_' || (r >= '0' && r <= '9'):
			// allowed
		default:
			return false
		}
	}
	return hasUpper
}

// extractName scans a definition/declarator node's direct children for the first
// identifier-shaped leaf, returning empty when none is found (the caller then labels
// the chunk anonymous).
func extractName(n *Node, source []byte) string {
	for _, child := range n.Children {
		switch child.Type {
		case "identifier", "type_identifier", "property_identifier", "field_identifier", "shorthand_property_identifier":
			return child.GetContent(source)
		}
	}
	return ""
}

func classifyChunkType(nodeType string, config *LanguageConfig) ChunkType {
	lower := strings.ToLower(nodeType)
	switch {
	case strings.Contains(lower, "interface"):
		return ChunkTypeInterface
	case strings.Contains(lower, "type_alias") || strings.Contains(lower, "type_declaration") || strings.Contains(lower, "type_item"):
		return ChunkTypeTypeAlias
	case strings.Contains(lower, "class"):
		return ChunkTypeClass
	case strings.Contains(lower, "method"):
		return ChunkTypeMethod
	case strings.Contains(lower, "function"):
		return ChunkTypeFunction
	default:
		return ChunkTypeOther
	}
}

func definitionLabel(chunkType ChunkType, name string) string {
	prefix := "Symbol"
	switch chunkType {
	case ChunkTypeClass:
		prefix = "Class"
	case ChunkTypeInterface:
		prefix = "Interface"
	case ChunkTypeTypeAlias:
		prefix = "Type"
	case ChunkTypeMethod:
		prefix = "Method"
	case ChunkTypeFunction:
		prefix = "Function"
	}
	if name == "" {
		name = "<anonymous " + prefix + ">"
	}
	return prefix + ": " + name
}

// byteRangeToLines converts a [start,end) byte range of source into 0-indexed,
// half-open-at-the-end line numbers.
func byteRangeToLines(source []byte, start, end uint32) (int, int) {
	startLine := countNewlines(source[:start])
	if end <= start {
		return startLine, startLine
	}
	endLine := startLine + countNewlines(source[start:end])
	if source[end-1] != '\n' {
		endLine++
	}
	return startLine, endLine
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

// enforceSizeBounds splits any chunk exceeding MaxChars or MaxLines, preserving
// chunk_type and prepending the original's first non-empty line as a header to every
// sub-chunk beyond the first (for non-Block chunks).
func enforceSizeBounds(chunks []*Chunk) []*Chunk {
	var result []*Chunk
	for _, ch := range chunks {
		result = append(result, splitIfOversized(ch)...)
	}
	return result
}

func splitIfOversized(ch *Chunk) []*Chunk {
	lineCount := ch.EndLine - ch.StartLine
	if len(ch.Content) <= MaxChars && lineCount <= MaxLines {
		return []*Chunk{ch}
	}

	var subs []*Chunk
	if lineCount > MaxLines {
		subs = splitByLines(ch)
	} else {
		subs = splitByChars(ch.Content, ch.StartLine, ch.ChunkType, ch.Context)
	}

	var out []*Chunk
	for _, s := range subs {
		if len(s.Content) > MaxChars {
			out = append(out, splitByChars(s.Content, s.StartLine, s.ChunkType, s.Context)...)
		} else {
			out = append(out, s)
		}
	}

	if ch.ChunkType != ChunkTypeBlock {
		header := firstNonEmptyLine(ch.Content)
		for i := 1; i < len(out); i++ {
			if header != "" {
				out[i].Content = header + "\n" + out[i].Content
			}
		}
	}

	return out
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func splitByLines(ch *Chunk) []*Chunk {
	lines := strings.Split(ch.Content, "\n")
	stride := MaxLines - OverlapLines
	if stride < 1 {
		stride = 1
	}

	var out []*Chunk
	i := 0
	for i < len(lines) {
		end := i + MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		sub := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(sub) != "" {
			out = append(out, &Chunk{
				Content:   sub,
				StartLine: ch.StartLine + i,
				EndLine:   ch.StartLine + end,
				ChunkType: ch.ChunkType,
				Context:   ch.Context,
			})
		}
		if end >= len(lines) {
			break
		}
		i += stride
	}
	return out
}

func splitByChars(content string, startLine int, chunkType ChunkType, context []string) []*Chunk {
	stride := MaxChars - OverlapChars
	if stride < 1 {
		stride = 1
	}

	var out []*Chunk
	i := 0
	for i < len(content) {
		end := floorByteBoundary(content, i+MaxChars)
		if end > len(content) {
			end = len(content)
		}
		sub := content[i:end]
		if strings.TrimSpace(sub) == "" {
			break
		}

		prefixLines := strings.Count(content[:i], "\n")
		subLines := strings.Count(sub, "\n")
		if !strings.HasSuffix(sub, "\n") {
			subLines++
		}

		out = append(out, &Chunk{
			Content:   sub,
			StartLine: startLine + prefixLines,
			EndLine:   startLine + prefixLines + subLines,
			ChunkType: chunkType,
			Context:   context,
		})

		if end >= len(content) {
			break
		}
		i = floorByteBoundary(content, i+stride)
		if i <= 0 {
			break
		}
	}
	return out
}

// floorByteBoundary rounds target down to the previous valid UTF-8 code-point start,
// never exceeding len(s).
func floorByteBoundary(s string, target int) int {
	if target >= len(s) {
		return len(s)
	}
	if target <= 0 {
		return 0
	}
	for target > 0 && !utf8.RuneStart(s[target]) {
		target--
	}
	return target
}

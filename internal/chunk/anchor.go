package chunk

import (
	"regexp"
	"sort"
	"strings"
)

var (
	importFromRe = regexp.MustCompile(`from\s+["']([^"']+)["']`)
	importRe     = regexp.MustCompile(`^\s*import\s+["']([^"']+)["']`)
	importAsRe   = regexp.MustCompile(`import\s+(?:\*\s+as\s+)?([A-Za-z0-9_$]+)`)
	requireRe    = regexp.MustCompile(`require\(\s*["']([^"']+)["']\s*\)`)

	exportRe      = regexp.MustCompile(`^export\s+(?:default\s+)?(class|function|const|let|var|interface|type|enum)\s+([A-Za-z0-9_$]+)`)
	exportBraceRe = regexp.MustCompile(`^export\s+\{([^}]+)\}`)
)

const (
	anchorScanWindow  = 200
	preambleMaxLines  = 30
	preambleMaxChars  = 1200
	anchorMinEndLines = 5
)

// BuildAnchorChunk emits the single synthetic summary chunk for a file: imports, exports,
// leading comments, and a leading-content preamble, terminated by a literal sentinel.
func BuildAnchorChunk(content, path string) *Chunk {
	lines := strings.Split(content, "\n")

	topComments := extractTopComments(lines)
	imports := extractImports(lines)
	exports := extractExports(lines)
	preamble := extractPreamble(lines)

	var b strings.Builder
	b.WriteString("File: ")
	b.WriteString(path)

	if len(imports) > 0 {
		b.WriteString("\n\nImports: ")
		b.WriteString(strings.Join(imports, ", "))
	}
	if len(exports) > 0 {
		b.WriteString("\n\nExports: ")
		b.WriteString(strings.Join(exports, ", "))
	}
	if len(topComments) > 0 {
		b.WriteString("\n\nTop comments:\n")
		b.WriteString(strings.Join(topComments, "\n"))
	}
	if len(preamble) > 0 {
		b.WriteString("\n\nPreamble:\n")
		b.WriteString(strings.Join(preamble, "\n"))
	}
	b.WriteString("\n\n---\n\n(anchor)")

	nonBlank := countNonBlank(lines)
	endLine := maxInt(nonBlank, len(preamble))
	endLine = maxInt(endLine, anchorMinEndLines)
	if endLine > len(lines) {
		endLine = len(lines)
	}

	chunk := NewChunk(b.String(), 0, endLine, ChunkTypeBlock, []string{"File: " + path, "Anchor"})
	chunk.ChunkIndex = -1
	chunk.IsAnchor = true
	return chunk
}

func extractTopComments(lines []string) []string {
	var out []string
	inBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inBlock {
			out = append(out, line)
			if strings.Contains(trimmed, "*/") {
				inBlock = false
			}
			continue
		}

		switch {
		case trimmed == "":
			out = append(out, line)
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#!"), strings.HasPrefix(trimmed, "# "):
			out = append(out, line)
		case strings.HasPrefix(trimmed, "/*"):
			out = append(out, line)
			if !strings.Contains(trimmed[2:], "*/") {
				inBlock = true
			}
		default:
			goto trimTrailing
		}
	}

trimTrailing:
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return out
}

func extractImports(lines []string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(spec string) {
		spec = strings.TrimSpace(spec)
		if spec == "" || seen[spec] {
			return
		}
		seen[spec] = true
		out = append(out, spec)
	}

	for i, line := range lines {
		if i >= anchorScanWindow {
			break
		}
		trimmed := strings.TrimSpace(line)

		if m := importFromRe.FindStringSubmatch(trimmed); m != nil {
			add(m[1])
			continue
		}
		if m := importRe.FindStringSubmatch(trimmed); m != nil {
			add(m[1])
			continue
		}
		if m := importAsRe.FindStringSubmatch(trimmed); m != nil {
			add(m[1])
			continue
		}
		if strings.HasPrefix(trimmed, "use ") {
			rest := strings.TrimPrefix(trimmed, "use ")
			rest = strings.TrimRight(rest, ";")
			if idx := strings.Index(rest, "::"); idx >= 0 {
				rest = rest[:idx]
			}
			add(rest)
			continue
		}
		if m := requireRe.FindStringSubmatch(trimmed); m != nil {
			add(m[1])
			continue
		}
	}

	sort.Strings(out)
	return out
}

func extractExports(lines []string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for i, line := range lines {
		if i >= anchorScanWindow {
			break
		}
		trimmed := strings.TrimSpace(line)

		if !strings.HasPrefix(trimmed, "export") && !strings.Contains(trimmed, "module.exports") {
			continue
		}

		if m := exportRe.FindStringSubmatch(trimmed); m != nil {
			add(m[2])
			continue
		}
		if m := exportBraceRe.FindStringSubmatch(trimmed); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				add(part)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "export default") {
			add("default")
			continue
		}
		if strings.Contains(trimmed, "module.exports") {
			add("module.exports")
			continue
		}
	}

	sort.Strings(out)
	return out
}

func extractPreamble(lines []string) []string {
	var out []string
	nonBlank := 0
	chars := 0

	for _, line := range lines {
		if nonBlank >= preambleMaxLines || chars >= preambleMaxChars {
			break
		}
		out = append(out, line)
		chars += len(line)
		if strings.TrimSpace(line) != "" {
			nonBlank++
		}
	}
	return out
}

func countNonBlank(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

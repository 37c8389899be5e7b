package indexer

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText renders markdown source to the text a reader would see, with
// block elements separated by blank lines.
func PlainText(md goldmark.Markdown, source string) string {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	var b bytes.Buffer
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
		}

		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			endBlock(&b)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

func endBlock(b *bytes.Buffer) {
	for b.Len() > 0 && b.Bytes()[b.Len()-1] == '\n' {
		b.Truncate(b.Len() - 1)
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
}

var boundaries = []string{". ", "! ", "? ", "\n\n", "\n"}

// boundaryWindow is how far back from a chunk's end a boundary is searched for.
const boundaryWindow = 100

// Chunk splits s into pieces of at most size runes that overlap by overlap
// runes. A chunk that is not the last one ends at the latest sentence or line
// break in its final boundaryWindow runes when there is one.
func Chunk(s string, size, overlap int) []string {
	runes := []rune(s)
	if size <= 0 || len(runes) <= size {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end < len(runes) {
			end = breakAt(runes, start, end)
		} else {
			end = len(runes)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakAt(runes []rune, start, end int) int {
	from := end - boundaryWindow
	if from < start {
		from = start
	}
	window := string(runes[from:end])
	for _, sep := range boundaries {
		if i := strings.LastIndex(window, sep); i != -1 {
			return from + len([]rune(window[:i+len(sep)]))
		}
	}
	return end
}

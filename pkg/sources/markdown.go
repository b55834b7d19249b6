package sources

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// parseMarkdown parses src into a goldmark document
func parseMarkdown(src []byte) ast.Node {
	return goldmark.New().Parser().Parse(text.NewReader(src))
}

// rawLines returns the source text of a block node, one space between lines
func rawLines(n ast.Node, src []byte) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// listItemText returns the raw text of the first block inside a list item
func listItemText(item *ast.ListItem, src []byte) (ast.Node, string) {
	block := item.FirstChild()
	if block == nil {
		return nil, ""
	}
	switch block.Kind() {
	case ast.KindTextBlock, ast.KindParagraph:
		return block, rawLines(block, src)
	}
	return nil, ""
}

// isDashBullet reports whether a list item belongs to a "-" bullet list
func isDashBullet(item *ast.ListItem) bool {
	list, ok := item.Parent().(*ast.List)
	return ok && !list.IsOrdered() && list.Marker == '-'
}

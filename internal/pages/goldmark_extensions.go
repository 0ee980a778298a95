// internal/pages/goldmark_extensions.go
package pages

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// mdLinkTransformer rewrites links to sibling .md files so they point at
// the generated .html pages.
type mdLinkTransformer struct{}

func newMDLinkTransformer() parser.ASTTransformer {
	return &mdLinkTransformer{}
}

func (t *mdLinkTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}

		dest, frag := link.Destination, []byte(nil)
		if i := bytes.IndexByte(dest, '#'); i >= 0 {
			dest, frag = dest[:i], dest[i:]
		}
		if bytes.HasSuffix(dest, []byte(".md")) && !bytes.Contains(dest, []byte("://")) {
			newDest := append([]byte{}, bytes.TrimSuffix(dest, []byte(".md"))...)
			newDest = append(newDest, ".html"...)
			link.Destination = append(newDest, frag...)
		}
		return ast.WalkContinue, nil
	})
}

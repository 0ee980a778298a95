package pages

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Whitespace-only text directly inside these elements is dropped entirely.
var blockParents = map[atom.Atom]bool{
	atom.Html: true, atom.Head: true, atom.Body: true,
	atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Aside: true,
	atom.Ul: true, atom.Ol: true, atom.Dl: true,
	atom.Table: true, atom.Thead: true, atom.Tbody: true, atom.Tfoot: true, atom.Tr: true,
	atom.Select: true, atom.Form: true, atom.Fieldset: true,
}

var preserveWhitespace = map[atom.Atom]bool{
	atom.Pre: true, atom.Textarea: true, atom.Script: true, atom.Style: true,
}

// minify removes comments and collapses whitespace outside of elements
// where it is significant.
func minify(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.TextNode:
			if n.Type == html.ElementNode && preserveWhitespace[n.DataAtom] {
				break
			}
			if strings.TrimSpace(c.Data) == "" && (n.Type == html.DocumentNode || blockParents[n.DataAtom]) {
				n.RemoveChild(c)
				break
			}
			c.Data = collapseSpaces(c.Data)
		case html.ElementNode:
			if !preserveWhitespace[c.DataAtom] {
				minify(c)
			}
		}
		c = next
	}
}

func collapseSpaces(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				sb.WriteByte(' ')
			}
			space = true
		default:
			sb.WriteRune(r)
			space = false
		}
	}
	return sb.String()
}

package pages

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagepack/internal/bundler"
	"pagepack/internal/views"
)

// Inject parses a rendered view and adds the page title, stylesheet links,
// module preloads and script tags. Scripts go to the end of <body> unless the
// page injects into <head>.
func Inject(doc []byte, page views.PageConfig, entries []bundler.EntryAssets) ([]byte, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	head := findElement(root, atom.Head)
	body := findElement(root, atom.Body)

	setTitle(root, head, page.Title)

	for _, e := range entries {
		for _, href := range e.Styles {
			head.AppendChild(element(atom.Link, "rel", "stylesheet", "href", href))
		}
	}
	for _, e := range entries {
		for _, href := range e.Preload {
			head.AppendChild(element(atom.Link, "rel", "modulepreload", "href", href))
		}
	}

	target := body
	if page.Inject == views.InjectHead {
		target = head
	}
	for _, e := range entries {
		for _, src := range e.Scripts {
			var script *html.Node
			switch {
			case e.Module:
				script = element(atom.Script, "type", "module", "src", src)
			case target == head:
				script = element(atom.Script, "defer", "", "src", src)
			default:
				script = element(atom.Script, "src", src)
			}
			target.AppendChild(script)
		}
	}

	if page.Minify {
		minify(root)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setTitle fills an empty <title> or adds one. A title the view already
// sets is kept.
func setTitle(root, head *html.Node, title string) {
	if title == "" {
		return
	}
	t := findElement(root, atom.Title)
	if t == nil {
		t = element(atom.Title)
		head.InsertBefore(t, head.FirstChild)
	}
	if strings.TrimSpace(textContent(t)) != "" {
		return
	}
	for c := t.FirstChild; c != nil; {
		next := c.NextSibling
		t.RemoveChild(c)
		c = next
	}
	t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

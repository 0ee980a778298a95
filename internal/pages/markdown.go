// internal/pages/markdown.go
package pages

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
	"gopkg.in/yaml.v3"
)

var (
	markdownRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(
				util.Prioritized(newMDLinkTransformer(), 100),
			),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	htmlSanitizer = bluemonday.UGCPolicy()
)

// renderMarkdown converts a markdown partial to HTML. A leading YAML front
// matter block is validated and dropped. Output is sanitized unless unsafe.
func renderMarkdown(raw []byte, unsafe bool) (string, error) {
	body := raw
	if bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), []byte("---")) {
		parts := bytes.SplitN(raw, []byte("---"), 3)
		if len(parts) == 3 {
			var meta map[string]any
			if err := yaml.Unmarshal(parts[1], &meta); err != nil {
				return "", fmt.Errorf("failed to parse front matter: %w", err)
			}
			body = parts[2]
		}
	}

	var buf bytes.Buffer
	if err := markdownRenderer.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown with goldmark: %w", err)
	}

	if !unsafe {
		return string(htmlSanitizer.SanitizeBytes(buf.Bytes())), nil
	}
	return buf.String(), nil
}

package pages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"pagepack/internal/bundler"
	"pagepack/internal/views"
)

var testEntries = []bundler.EntryAssets{{
	Name:    "app",
	Scripts: []string{"/assets/js/app.abc.js"},
	Styles:  []string{"/assets/css/app.abc.css"},
	Preload: []string{"/assets/js/chunk.def.js"},
	Module:  true,
}}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInjectBody(t *testing.T) {
	doc := []byte(`<!DOCTYPE html><html><head><title></title></head><body><p>hi</p></body></html>`)
	page := views.PageConfig{Title: "about", Inject: views.InjectBody}

	out, err := Inject(doc, page, testEntries)
	require.NoError(t, err)
	s := string(out)

	require.Contains(t, s, "<title>about</title>")
	require.Contains(t, s, `<link rel="stylesheet" href="/assets/css/app.abc.css"/>`)
	require.Contains(t, s, `<link rel="modulepreload" href="/assets/js/chunk.def.js"/>`)
	require.Contains(t, s, `<p>hi</p><script type="module" src="/assets/js/app.abc.js"></script></body>`)
	require.True(t, strings.HasPrefix(s, "<!DOCTYPE html>"))
}

func TestInjectHead(t *testing.T) {
	doc := []byte(`<html><head></head><body></body></html>`)
	page := views.PageConfig{Title: "x", Inject: views.InjectHead}
	entries := []bundler.EntryAssets{{Name: "app", Scripts: []string{"/app.js"}}}

	out, err := Inject(doc, page, entries)
	require.NoError(t, err)
	s := string(out)

	require.Contains(t, s, `<script defer="" src="/app.js"></script></head>`)
	require.Contains(t, s, "<title>x</title>")
	require.Contains(t, s, "<body></body>")
}

func TestInjectKeepsExistingTitle(t *testing.T) {
	doc := []byte(`<html><head><title>Welcome</title></head><body></body></html>`)

	out, err := Inject(doc, views.PageConfig{Title: "index"}, nil)
	require.NoError(t, err)
	require.Contains(t, string(out), "<title>Welcome</title>")
	require.NotContains(t, string(out), "<title>index</title>")
}

func TestInjectFragment(t *testing.T) {
	out, err := Inject([]byte(`<h1>Only a fragment</h1>`), views.PageConfig{Title: "frag"}, testEntries)
	require.NoError(t, err)
	s := string(out)
	require.Contains(t, s, "<head><title>frag</title>")
	require.Contains(t, s, "<h1>Only a fragment</h1>")
}

func TestInjectMinify(t *testing.T) {
	doc := []byte(`<html>
  <head>
    <!-- comment -->
    <title>t</title>
  </head>
  <body>
    <div>
      <p>some    spaced
      text</p>
    </div>
    <pre>  keep
   this</pre>
  </body>
</html>`)

	out, err := Inject(doc, views.PageConfig{Title: "t", Minify: true}, nil)
	require.NoError(t, err)
	s := string(out)

	require.NotContains(t, s, "comment")
	require.Contains(t, s, "<head><title>t</title></head>")
	require.Contains(t, s, "<p>some spaced text</p>")
	require.Contains(t, s, "<pre>  keep\n   this</pre>")
	require.Contains(t, s, "<div><p>")
}

func TestRendererWithPartialsAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	viewsDir := filepath.Join(dir, "views")
	partials := filepath.Join(viewsDir, "partials")

	writeFile(t, filepath.Join(partials, "header.html"), `{{ define "header" }}<header>{{ .Title }} ({{ .Mode }})</header>{{ end }}`)
	writeFile(t, filepath.Join(partials, "intro.md"), "---\nauthor: me\n---\n# Intro\n\nSee [next](next.md).\n\n<script>alert(1)</script>\n")
	writeFile(t, filepath.Join(viewsDir, "index.html"), `<!DOCTYPE html>
<html><head><title></title></head>
<body>{{ template "header" . }}{{ markdown "intro.md" }}</body></html>`)

	pages, err := views.Discover(viewsDir, views.Options{})
	require.NoError(t, err)
	require.Len(t, pages, 1)

	r := NewRenderer(Options{PartialsDir: partials, Mode: "development"}, zerolog.Nop())
	outdir := filepath.Join(dir, "dist")
	written, err := r.WriteAll(outdir, pages, testEntries)
	require.NoError(t, err)
	require.Equal(t, []string{"index.html"}, written)

	data, err := os.ReadFile(filepath.Join(outdir, "index.html"))
	require.NoError(t, err)
	s := string(data)

	require.Contains(t, s, "<header>index (development)</header>")
	require.Contains(t, s, `<h1 id="intro">Intro</h1>`)
	require.Contains(t, s, `href="next.html"`)
	require.NotContains(t, s, "alert(1)")
	require.NotContains(t, s, "author: me")
	require.Contains(t, s, `src="/assets/js/app.abc.js"`)
}

func TestRendererUnsafeMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "intro.md"), "<span class=\"x\" onclick=\"go()\">raw</span>\n")
	writeFile(t, filepath.Join(dir, "page.html"), `<body>{{ markdown "intro.md" }}</body>`)

	page := views.PageConfig{TemplatePath: filepath.Join(dir, "page.html"), Filename: "page.html", Title: "page"}

	out, err := NewRenderer(Options{Unsafe: true}, zerolog.Nop()).Render(page, nil)
	require.NoError(t, err)
	require.Contains(t, string(out), `onclick="go()"`)

	out, err = NewRenderer(Options{}, zerolog.Nop()).Render(page, nil)
	require.NoError(t, err)
	require.NotContains(t, string(out), "onclick")
	require.Contains(t, string(out), "raw")
}

func TestRendererMissingMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{ markdown "nope.md" }}`)
	page := views.PageConfig{TemplatePath: filepath.Join(dir, "page.html"), Filename: "page.html"}

	_, err := NewRenderer(Options{}, zerolog.Nop()).Render(page, nil)
	require.ErrorContains(t, err, `markdown partial "nope.md" not found`)
}

func TestRendererTemplateError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), `{{ template "missing" . }}`)
	page := views.PageConfig{TemplatePath: filepath.Join(dir, "page.html"), Filename: "page.html"}

	_, err := NewRenderer(Options{}, zerolog.Nop()).Render(page, nil)
	require.ErrorContains(t, err, "failed to execute view")
}

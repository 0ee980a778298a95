// internal/scaffold/scaffold.go
package scaffold

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"pagepack/internal/config"
)

// ErrExists is returned instead of overwriting a file.
var ErrExists = errors.New("file already exists")

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// CreateNewProject writes a starter project into dir and returns the created
// files relative to dir. Nothing is written when any of them already exists.
func CreateNewProject(dir string, log zerolog.Logger) ([]string, error) {
	log.Info().Str("dir", dir).Msg("Scaffolding new project")

	files := map[string]string{
		config.DefaultFile:           configYamlContent,
		"src/js/app.js":              appJsContent,
		"src/scss/index.scss":        indexScssContent,
		"views/index.html":           indexHtmlContent,
		"views/about.html":           aboutHtmlContent,
		"views/partials/header.html": headerHtmlContent,
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, filepath.Join(dir, name))
		}
	}

	for _, name := range names {
		if err := writeNew(filepath.Join(dir, name), []byte(files[name])); err != nil {
			return nil, fmt.Errorf("failed to write file %s: %w", name, err)
		}
		log.Debug().Str("file", name).Msg("Created")
	}
	return names, nil
}

// NewView creates views/<slug>.html from the view archetype and returns its
// path. The title is kept as written; the file name is its slug.
func NewView(viewsDir, title string) (string, error) {
	slug := Slug(title)
	if slug == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", title)
	}

	tmpl, err := template.New("view").Delims("[[", "]]").Parse(viewArchetype)
	if err != nil {
		return "", fmt.Errorf("failed to parse view archetype: %w", err)
	}
	var output bytes.Buffer
	if err := tmpl.Execute(&output, struct{ Title string }{Title: title}); err != nil {
		return "", fmt.Errorf("failed to execute view archetype: %w", err)
	}

	path := filepath.Join(viewsDir, slug+".html")
	if err := writeNew(path, output.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// Slug lowercases title and joins its alphanumeric runs with dashes. Dots
// never survive, so the generated name maps back to itself.
func Slug(title string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

func writeNew(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const configYamlContent = `# Every key is optional. Unset keys keep their defaults.
entries:
  - name: app
    import: [src/js/app.js, src/scss/index.scss]
output:
  path: dist
views:
  dir: views
  partials: views/partials
  naming: first-segment
devServer:
  port: 9000
  open: true
`

const appJsContent = `document.addEventListener("DOMContentLoaded", () => {
  document.documentElement.classList.add("js");
});
`

const indexScssContent = `$text: #222;
$muted: #777;

body {
  font-family: sans-serif;
  max-width: 700px;
  margin: 2em auto;
  padding: 0 1em;
  line-height: 1.6;
  color: $text;
  background: #fdfdfd;
}

header nav a {
  color: $muted;
  margin-right: 0.5em;
}
`

const indexHtmlContent = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title></title>
</head>
<body>
  {{ template "header" . }}
  <main>
    <h1>Welcome</h1>
    <p>This page was generated from views/index.html.</p>
  </main>
</body>
</html>
`

const aboutHtmlContent = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title></title>
</head>
<body>
  {{ template "header" . }}
  <main>
    <h1>About</h1>
  </main>
</body>
</html>
`

const headerHtmlContent = `{{ define "header" }}
<header>
  <nav>
    <a href="index.html">home</a>
    <a href="about.html">about</a>
  </nav>
  {{ if eq .Mode "development" }}<small>{{ .Title }} (development)</small>{{ end }}
</header>
{{ end }}`

const viewArchetype = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>[[ .Title | html ]]</title>
</head>
<body>
  {{ template "header" . }}
  <main>
    <h1>[[ .Title | html ]]</h1>
  </main>
</body>
</html>
`

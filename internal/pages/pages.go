// internal/pages/pages.go
package pages

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"pagepack/internal/bundler"
	"pagepack/internal/views"
)

type Options struct {
	// PartialsDir holds *.html partials available to every view.
	PartialsDir string
	// Unsafe disables sanitizing of markdown partials.
	Unsafe bool
	Mode   string
}

// Data is passed to every view template.
type Data struct {
	Title   string
	Mode    string
	Page    views.PageConfig
	Entries []bundler.EntryAssets
}

// Renderer generates one HTML page per PageConfig.
type Renderer struct {
	opts Options
	log  zerolog.Logger
}

func NewRenderer(opts Options, log zerolog.Logger) *Renderer {
	return &Renderer{opts: opts, log: log}
}

// Render executes the view, then injects title, stylesheets and scripts.
func (r *Renderer) Render(page views.PageConfig, entries []bundler.EntryAssets) ([]byte, error) {
	tmpl, err := r.load(page.TemplatePath)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	data := Data{
		Title:   page.Title,
		Mode:    r.opts.Mode,
		Page:    page,
		Entries: entries,
	}
	if err := tmpl.ExecuteTemplate(&buf, filepath.Base(page.TemplatePath), data); err != nil {
		return nil, fmt.Errorf("failed to execute view %s: %w", page.TemplatePath, err)
	}

	out, err := Inject(buf.Bytes(), page, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to inject assets into %s: %w", page.TemplatePath, err)
	}
	return out, nil
}

// WriteAll renders every page into outdir and returns the written file names.
func (r *Renderer) WriteAll(outdir string, pages []views.PageConfig, entries []bundler.EntryAssets) ([]string, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(pages))
	for _, page := range pages {
		out, err := r.Render(page, entries)
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(outdir, page.Filename)
		if err := os.WriteFile(dest, out, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write page %s: %w", dest, err)
		}
		r.log.Debug().Str("page", page.Filename).Str("template", page.TemplatePath).Msg("Generated page")
		written = append(written, page.Filename)
	}
	return written, nil
}

func (r *Renderer) load(viewPath string) (*template.Template, error) {
	tmpl := template.New(filepath.Base(viewPath)).Funcs(template.FuncMap{
		"markdown": r.markdownFunc(filepath.Dir(viewPath)),
	})

	if r.opts.PartialsDir != "" {
		partials, err := filepath.Glob(filepath.Join(r.opts.PartialsDir, "*.html"))
		if err != nil {
			return nil, err
		}
		if len(partials) > 0 {
			if tmpl, err = tmpl.ParseFiles(partials...); err != nil {
				return nil, fmt.Errorf("failed to parse partials in %s: %w", r.opts.PartialsDir, err)
			}
		}
	}

	tmpl, err := tmpl.ParseFiles(viewPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse view %s: %w", viewPath, err)
	}
	return tmpl, nil
}

// markdownFunc resolves names against the partials directory first, then
// the view's own directory.
func (r *Renderer) markdownFunc(viewDir string) func(string) (template.HTML, error) {
	return func(name string) (template.HTML, error) {
		candidates := []string{filepath.Join(viewDir, name)}
		if r.opts.PartialsDir != "" {
			candidates = append([]string{filepath.Join(r.opts.PartialsDir, name)}, candidates...)
		}
		for _, p := range candidates {
			raw, err := os.ReadFile(p)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return "", err
			}
			out, err := renderMarkdown(raw, r.opts.Unsafe)
			if err != nil {
				return "", fmt.Errorf("%s: %w", p, err)
			}
			return template.HTML(out), nil //nolint:gosec
		}
		return "", fmt.Errorf("markdown partial %q not found", name)
	}
}

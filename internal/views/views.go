// internal/views/views.go
package views

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrDirectoryNotFound = errors.New("views directory not found")
	ErrFilenameCollision = errors.New("views resolve to the same output file")
	ErrBadPattern        = errors.New("bad views pattern")
)

// DefaultPattern matches every html file directly inside the views directory.
const DefaultPattern = "*.html"

// Naming decides how a template file name is reduced to its base name.
type Naming string

const (
	// NamingFirstSegment keeps everything before the first dot, so
	// "contact.us.html" becomes "contact".
	NamingFirstSegment Naming = "first-segment"
	// NamingTrimExt strips only the final extension: "contact.us.html"
	// becomes "contact.us".
	NamingTrimExt Naming = "trim-ext"
)

// Inject modes for generated pages.
const (
	InjectBody = "body"
	InjectHead = "head"
)

// PageConfig describes how one template maps to one generated page.
type PageConfig struct {
	TemplatePath string `json:"template"`
	Filename     string `json:"filename"`
	Title        string `json:"title"`
	Inject       string `json:"inject"`
	Minify       bool   `json:"minify"`
}

type Options struct {
	Pattern string
	Naming  Naming
	Inject  string
	Minify  bool
}

// Discover lists the templates in dir and derives one PageConfig per file,
// in file name order. Only names are matched against the pattern, so glob
// characters in dir itself are taken literally. No matches is not an error.
func Discover(dir string, opts Options) ([]PageConfig, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("could not stat views directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, dir)
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read views directory %s: %w", dir, err)
	}
	var matches []string
	for _, entry := range entries {
		if ok, _ := filepath.Match(pattern, entry.Name()); ok {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}

	inject := opts.Inject
	if inject == "" {
		inject = InjectBody
	}

	pages := make([]PageConfig, 0, len(matches))
	owners := make(map[string]string, len(matches))
	for _, path := range matches {
		if fi, err := os.Stat(path); err != nil || fi.IsDir() {
			continue
		}
		base := BaseName(filepath.Base(path), opts.Naming)
		filename := base + ".html"
		if prev, ok := owners[filename]; ok {
			return nil, fmt.Errorf("%w: %s and %s both produce %s", ErrFilenameCollision, prev, path, filename)
		}
		owners[filename] = path

		pages = append(pages, PageConfig{
			TemplatePath: path,
			Filename:     filename,
			Title:        base,
			Inject:       inject,
			Minify:       opts.Minify,
		})
	}
	return pages, nil
}

// BaseName reduces a file name to the part used for the output file and
// title. An unknown naming falls back to NamingFirstSegment.
func BaseName(name string, naming Naming) string {
	if naming == NamingTrimExt {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	base, _, _ := strings.Cut(name, ".")
	return base
}

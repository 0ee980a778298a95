// internal/builder/builder.go
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pagepack/internal/bundler"
	"pagepack/internal/config"
	"pagepack/internal/pages"
	"pagepack/internal/views"
)

// ManifestFile is written at the root of the output directory.
const ManifestFile = "manifest.json"

type BuildOptions struct {
	CleanDestination bool
}

// Build discovers the views, cleans the output directory, bundles the
// entries, generates one page per view and writes the manifest.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*Report, error) {
	log := zerolog.Ctx(ctx)
	started := time.Now()

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	outdir := filepath.Join(root, cfg.Output.Path)

	// Nothing in the output directory changes until discovery has succeeded.
	pageConfigs, err := DiscoverPages(cfg)
	if err != nil {
		return nil, err
	}

	b, err := bundler.New(cfg, *log)
	if err != nil {
		return nil, err
	}

	if opts.CleanDestination {
		log.Debug().Str("dir", outdir).Msg("Cleaning destination directory")
		if err := cleanDir(outdir); err != nil {
			return nil, fmt.Errorf("failed to clean %s: %w", outdir, err)
		}
	}
	result, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	renderer := pages.NewRenderer(pages.Options{
		PartialsDir: resolve(root, cfg.Views.Partials),
		Unsafe:      cfg.Views.Unsafe,
		Mode:        string(cfg.Mode),
	}, *log)
	written, err := renderer.WriteAll(outdir, pageConfigs, result.Entries)
	if err != nil {
		return nil, fmt.Errorf("page generation failed: %w", err)
	}

	report := &Report{
		ID:       uuid.NewString(),
		Mode:     string(cfg.Mode),
		Started:  started,
		Duration: time.Since(started),
		Entries:  result.Entries,
		Pages:    pageConfigs,
		Files:    append(result.Files, written...),
		Warnings: result.Warnings,
	}
	if err := writeManifest(outdir, report); err != nil {
		return nil, err
	}
	return report, nil
}

// DiscoverPages runs the views scan with the options from cfg.
func DiscoverPages(cfg config.Config) ([]views.PageConfig, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	return views.Discover(resolve(root, cfg.Views.Dir), views.Options{
		Pattern: cfg.Views.Pattern,
		Naming:  views.Naming(cfg.Views.Naming),
		Inject:  cfg.Views.Inject,
		Minify:  cfg.Minify,
	})
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// cleanDir empties dir, creating it if needed. The directory itself is kept
// so a running file server keeps serving from it.
func cleanDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func writeManifest(outdir string, report *Report) error {
	m := Manifest{
		BuildID: report.ID,
		Mode:    report.Mode,
		Built:   report.Started.UTC(),
		Entries: make(map[string]bundler.EntryAssets, len(report.Entries)),
		Pages:   report.Pages,
		Files:   report.Files,
	}
	for _, e := range report.Entries {
		m.Entries[e.Name] = e
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, ManifestFile), data, 0o644)
}

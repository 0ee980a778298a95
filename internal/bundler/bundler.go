// internal/bundler/bundler.go
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"

	"pagepack/internal/config"
)

// Bundler turns the configured entries into hashed script and stylesheet
// files under the output directory.
type Bundler struct {
	cfg    config.Config
	root   string
	outdir string
	log    zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger) (*Bundler, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve root %s: %w", cfg.Root, err)
	}
	return &Bundler{
		cfg:    cfg,
		root:   root,
		outdir: filepath.Join(root, cfg.Output.Path),
		log:    log,
	}, nil
}

// OutputDir is the absolute output directory.
func (b *Bundler) OutputDir() string { return b.outdir }

// Build runs esbuild once. Output files are written by the bundler, not by
// esbuild, so extracted stylesheets can be moved next to the other CSS.
func (b *Bundler) Build(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rules, err := compileRules(b.cfg.Rules)
	if err != nil {
		return nil, err
	}
	assets := newAssetSet()

	sass := newSassCompiler(b.cfg.Sass, b.root)
	defer sass.Close()

	inject, cleanup, err := writeProvideShim(b.root, b.cfg.Provide, b.log)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	entryPoints := make([]api.EntryPoint, 0, len(b.cfg.Entries))
	for _, e := range b.cfg.Entries {
		entryPoints = append(entryPoints, api.EntryPoint{
			InputPath:  entryPrefix + e.Name,
			OutputPath: e.Name,
		})
	}

	format := api.FormatIIFE
	if b.cfg.SplitChunks {
		format = api.FormatESModule
	}

	b.log.Debug().Int("entries", len(entryPoints)).Str("mode", string(b.cfg.Mode)).Msg("Bundling assets")

	result := api.Build(api.BuildOptions{
		AbsWorkingDir:       b.root,
		EntryPointsAdvanced: entryPoints,
		Bundle:              true,
		Splitting:           b.cfg.SplitChunks,
		Write:               false,
		Outdir:              b.outdir,
		EntryNames:          b.cfg.Output.JS,
		ChunkNames:          chunkNames(b.cfg.Output.JS),
		Format:              format,
		Engines:             engines(b.cfg.Targets),
		MinifyWhitespace:    b.cfg.Minify,
		MinifyIdentifiers:   b.cfg.Minify,
		MinifySyntax:        b.cfg.Minify,
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           sourceMap(b.cfg),
		NodePaths:           []string{filepath.Join(b.root, "node_modules")},
		Inject:              inject,
		Define: map[string]string{
			"process.env.NODE_ENV": fmt.Sprintf("%q", b.cfg.Mode),
		},
		Loader: map[string]api.Loader{
			".js":  api.LoaderJS,
			".mjs": api.LoaderJS,
		},
		Plugins: []api.Plugin{
			entryPlugin(b.root, b.cfg.Entries),
			rulesPlugin(rules, b.root, b.outdir, assets),
			sass.plugin(),
		},
		Metafile: true,
		LogLevel: api.LogLevelSilent,
	})

	warnings := convertMessages(result.Warnings)
	for _, w := range warnings {
		b.log.Warn().Str("warning", w.String()).Msg("Build warning")
	}
	if len(result.Errors) > 0 {
		return nil, &BuildError{Messages: convertMessages(result.Errors)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := assets.list()
	for _, file := range result.OutputFiles {
		rel, err := filepath.Rel(b.outdir, file.Path)
		if err != nil {
			return nil, err
		}
		rel = b.relocate(filepath.ToSlash(rel))
		dest := filepath.Join(b.outdir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dest, file.Contents, 0o644); err != nil {
			return nil, fmt.Errorf("could not write %s: %w", dest, err)
		}
		b.log.Debug().Str("file", rel).Msg("Built file")
		files = append(files, rel)
	}
	sort.Strings(files)

	var meta metafile
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("could not parse metafile: %w", err)
	}

	entries, err := b.entryAssets(meta)
	if err != nil {
		return nil, err
	}

	return &Result{
		Entries:  entries,
		Files:    files,
		Warnings: warnings,
	}, nil
}

// entryAssets resolves, per configured entry, the script, its extracted
// stylesheet and the chunks it imports statically.
func (b *Bundler) entryAssets(meta metafile) ([]EntryAssets, error) {
	outputs := make(map[string]outputInfo, len(meta.Outputs))
	for key, info := range meta.Outputs {
		rel, err := b.outputRel(key)
		if err != nil {
			return nil, err
		}
		outputs[rel] = info
	}

	entries := make([]EntryAssets, 0, len(b.cfg.Entries))
	for _, e := range b.cfg.Entries {
		assets := EntryAssets{Name: e.Name, Module: b.cfg.SplitChunks}
		for rel, info := range outputs {
			if info.EntryPoint != entryPrefix+e.Name {
				continue
			}
			if strings.HasSuffix(rel, ".css") {
				continue
			}
			assets.Scripts = append(assets.Scripts, b.publicURL(rel))
			if info.CSSBundle != "" {
				cssRel, err := b.outputRel(info.CSSBundle)
				if err != nil {
					return nil, err
				}
				assets.Styles = append(assets.Styles, b.publicURL(cssRel))
			}
			visited := map[string]bool{rel: true}
			b.addDependencies(info, outputs, visited, &assets.Preload)
		}
		if len(assets.Scripts) == 0 {
			return nil, fmt.Errorf("entry %q not found in build output", e.Name)
		}
		entries = append(entries, assets)
	}
	return entries, nil
}

func (b *Bundler) addDependencies(output outputInfo, outputs map[string]outputInfo, visited map[string]bool, preload *[]string) {
	for _, imp := range output.Imports {
		if imp.External || imp.Kind != "import-statement" {
			continue
		}
		rel, err := b.outputRel(imp.Path)
		if err != nil || visited[rel] {
			continue
		}
		visited[rel] = true
		*preload = append(*preload, b.publicURL(rel))
		if chunk, ok := outputs[rel]; ok {
			b.addDependencies(chunk, outputs, visited, preload)
		}
	}
}

// outputRel maps a metafile path (relative to the working directory) to the
// slash-separated path the file was written to under the output directory.
func (b *Bundler) outputRel(key string) (string, error) {
	rel, err := filepath.Rel(b.outdir, filepath.Join(b.root, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	return b.relocate(filepath.ToSlash(rel)), nil
}

// relocate moves stylesheets and their maps from the script directory into
// the stylesheet directory.
func (b *Bundler) relocate(rel string) string {
	if !strings.HasSuffix(rel, ".css") && !strings.HasSuffix(rel, ".css.map") {
		return rel
	}
	cssDir := path.Dir(b.cfg.Output.CSS)
	if cssDir == path.Dir(b.cfg.Output.JS) {
		return rel
	}
	return path.Join(cssDir, path.Base(rel))
}

func (b *Bundler) publicURL(rel string) string {
	public := b.cfg.Output.PublicPath
	if public == "" {
		public = "/"
	}
	if !strings.HasSuffix(public, "/") {
		public += "/"
	}
	return public + rel
}

func chunkNames(entryNames string) string {
	dir := path.Dir(entryNames)
	if dir == "." {
		return "[name].[hash]"
	}
	return dir + "/[name].[hash]"
}

func sourceMap(cfg config.Config) api.SourceMap {
	switch {
	case !cfg.SourceMap:
		return api.SourceMapNone
	case cfg.InlineMap:
		return api.SourceMapInline
	default:
		return api.SourceMapLinked
	}
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

func engines(targets map[string]string) []api.Engine {
	names := make([]string, 0, len(targets))
	for name := range targets {
		if _, ok := engineNames[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]api.Engine, 0, len(names))
	for _, name := range names {
		out = append(out, api.Engine{Name: engineNames[name], Version: targets[name]})
	}
	return out
}

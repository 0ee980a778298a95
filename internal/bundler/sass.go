package bundler

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"

	"pagepack/internal/config"
)

// sassCompiler starts the embedded dart-sass process on first use, so
// projects without stylesheets never need the binary.
type sassCompiler struct {
	cfg  config.Sass
	root string

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
	startErr   error
}

func newSassCompiler(cfg config.Sass, root string) *sassCompiler {
	return &sassCompiler{cfg: cfg, root: root}
}

func (s *sassCompiler) get() (*godartsass.Transpiler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transpiler != nil || s.startErr != nil {
		return s.transpiler, s.startErr
	}
	binary := s.cfg.Binary
	if binary == "" {
		binary = "sass"
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
	})
	if err != nil {
		s.startErr = fmt.Errorf("could not start dart-sass (%s): %w", binary, err)
		return nil, s.startErr
	}
	s.transpiler = t
	return t, nil
}

func (s *sassCompiler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transpiler == nil {
		return nil
	}
	err := s.transpiler.Close()
	s.transpiler = nil
	return err
}

func (s *sassCompiler) compile(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	t, err := s.get()
	if err != nil {
		return "", err
	}

	style := s.cfg.OutputStyle
	if style == "" {
		style = "expanded"
	}
	syntax := godartsass.SourceSyntaxSCSS
	if filepath.Ext(path) == ".sass" {
		syntax = godartsass.SourceSyntaxSASS
	}
	res, err := t.Execute(godartsass.Args{
		Source:       string(src),
		SourceSyntax: syntax,
		OutputStyle:  godartsass.ParseOutputStyle(style),
		IncludePaths: []string{
			filepath.Dir(path),
			s.root,
			filepath.Join(s.root, "node_modules"),
		},
		EnableSourceMap:         s.cfg.SourceMap,
		SourceMapIncludeSources: s.cfg.SourceMap,
	})
	if err != nil {
		return "", fmt.Errorf("sass %s: %w", path, err)
	}

	css := res.CSS
	if s.cfg.SourceMap && res.SourceMap != "" {
		css += "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString([]byte(res.SourceMap)) + " */\n"
	}
	return css, nil
}

func (s *sassCompiler) plugin() api.Plugin {
	return api.Plugin{
		Name: "sass",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.s[ac]ss$`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					css, err := s.compile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{
						Contents:   &css,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     api.LoaderCSS,
						WatchFiles: []string{args.Path},
					}, nil
				})
		},
	}
}

package bundler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"pagepack/internal/config"
)

const (
	entryNamespace = "pagepack-entry"
	entryPrefix    = entryNamespace + ":"
	assetNamespace = "pagepack-asset"
)

// entryPlugin exposes each named entry as a virtual module importing every
// file listed for it, so one entry can pull in scripts and stylesheets.
func entryPlugin(root string, entries []config.Entry) api.Plugin {
	byName := make(map[string]config.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	return api.Plugin{
		Name: "entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(entryPrefix)},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, entryPrefix),
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					entry, ok := byName[args.Path]
					if !ok {
						return api.OnLoadResult{}, fmt.Errorf("unknown entry %q", args.Path)
					}
					var sb strings.Builder
					for _, imp := range entry.Import {
						spec, _ := json.Marshal(entryImportPath(root, imp))
						fmt.Fprintf(&sb, "import %s;\n", spec)
					}
					contents := sb.String()
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: root,
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

// entryImportPath makes files under root absolute and leaves anything else
// (package names) for node resolution.
func entryImportPath(root, imp string) string {
	if filepath.IsAbs(imp) {
		return imp
	}
	abs := filepath.Join(root, filepath.FromSlash(imp))
	if _, err := os.Stat(abs); err == nil || strings.HasPrefix(imp, ".") {
		return abs
	}
	return imp
}

type compiledRule struct {
	config.Rule
	re *regexp.Regexp
}

func compileRules(rules []config.Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Test)
		if err != nil {
			return nil, fmt.Errorf("%w: rules[%d].test: %v", config.ErrInvalidConfig, i, err)
		}
		out = append(out, compiledRule{Rule: r, re: re})
	}
	return out, nil
}

func (r compiledRule) match(p string) bool {
	if !r.re.MatchString(p) {
		return false
	}
	if r.Include != "" && !strings.Contains(p, r.Include) {
		return false
	}
	if r.Exclude != "" && strings.Contains(p, r.Exclude) {
		return false
	}
	return true
}

func (r compiledRule) publicURL(name string) string {
	public := r.PublicPath
	if public == "" {
		public = "/" + strings.Trim(r.OutputPath, "/") + "/"
	}
	if !strings.HasSuffix(public, "/") {
		public += "/"
	}
	return public + name
}

func findRule(rules []compiledRule, p string) (compiledRule, bool) {
	for _, r := range rules {
		if r.match(p) {
			return r, true
		}
	}
	return compiledRule{}, false
}

// rulesPlugin copies files matched by a rule to the rule's output path,
// keeping their name and extension. Stylesheet references are rewritten to
// the public URL; script imports receive the URL as their default export.
func rulesPlugin(rules []compiledRule, root, outdir string, assets *assetSet) api.Plugin {
	return api.Plugin{
		Name: "rules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint || args.Namespace == assetNamespace {
						return api.OnResolveResult{}, nil
					}
					clean, suffix := splitQuery(args.Path)
					if isRemote(clean) {
						return api.OnResolveResult{}, nil
					}
					css := args.Kind == api.ResolveCSSURLToken || args.Kind == api.ResolveCSSImportRule

					var abs string
					switch {
					case strings.HasPrefix(clean, "/") && css:
						// Root-relative URLs in stylesheets already point at the site.
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					case filepath.IsAbs(clean):
						abs = clean
					case strings.HasPrefix(clean, "."):
						abs = filepath.Join(args.ResolveDir, filepath.FromSlash(clean))
					default:
						abs = filepath.Join(root, "node_modules", filepath.FromSlash(clean))
					}

					rule, ok := findRule(rules, filepath.ToSlash(abs))
					if !ok {
						return api.OnResolveResult{}, nil
					}
					url, err := assets.emit(abs, outdir, rule)
					if err != nil {
						return api.OnResolveResult{}, err
					}
					if css {
						return api.OnResolveResult{Path: url + suffix, External: true}, nil
					}
					return api.OnResolveResult{
						Path:       abs,
						Namespace:  assetNamespace,
						PluginData: url,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: assetNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					url, _ := args.PluginData.(string)
					quoted, _ := json.Marshal(url)
					contents := fmt.Sprintf("export default %s;\n", quoted)
					return api.OnLoadResult{
						Contents: &contents,
						Loader:   api.LoaderJS,
					}, nil
				})
		},
	}
}

// splitQuery separates "font.woff2?v=4#iefix" into the file and its suffix.
func splitQuery(p string) (string, string) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i], p[i:]
	}
	return p, ""
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "data:") ||
		strings.HasPrefix(p, "http://") ||
		strings.HasPrefix(p, "https://") ||
		strings.HasPrefix(p, "//")
}

// assetSet tracks files copied by rules during one build. esbuild runs
// plugin callbacks concurrently.
type assetSet struct {
	mu      sync.Mutex
	sources map[string]string // output rel path -> source
}

func newAssetSet() *assetSet {
	return &assetSet{sources: make(map[string]string)}
}

func (s *assetSet) emit(src, outdir string, rule compiledRule) (string, error) {
	name := filepath.Base(src)
	rel := path.Join(filepath.ToSlash(rule.OutputPath), name)
	url := rule.publicURL(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sources[rel]; ok {
		if prev != src {
			return "", fmt.Errorf("%s and %s both emit %s", prev, src, rel)
		}
		return url, nil
	}

	if err := copyFile(src, filepath.Join(outdir, filepath.FromSlash(rel))); err != nil {
		return "", err
	}
	s.sources[rel] = src
	return url, nil
}

func (s *assetSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sources))
	for rel := range s.sources {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

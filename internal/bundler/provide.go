package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// writeProvideShim writes an esbuild inject file that binds each free
// identifier to the default export of its module. Modules that cannot be
// found are skipped with a warning, since the shim is part of every bundle.
func writeProvideShim(root string, provide map[string]string, log zerolog.Logger) ([]string, func(), error) {
	noop := func() {}
	if len(provide) == 0 {
		return nil, noop, nil
	}

	byModule := map[string][]string{}
	for ident, module := range provide {
		spec, ok := resolveProvided(root, module)
		if !ok {
			log.Warn().Str("identifier", ident).Str("module", module).Msg("Provided module not found, skipping")
			continue
		}
		byModule[spec] = append(byModule[spec], ident)
	}
	if len(byModule) == 0 {
		return nil, noop, nil
	}

	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	var sb strings.Builder
	for i, m := range modules {
		idents := byModule[m]
		sort.Strings(idents)
		quoted, _ := json.Marshal(m)
		fmt.Fprintf(&sb, "import __provided%d from %s;\n", i, quoted)
		exports := make([]string, 0, len(idents))
		for _, ident := range idents {
			exports = append(exports, fmt.Sprintf("__provided%d as %s", i, ident))
		}
		fmt.Fprintf(&sb, "export { %s };\n", strings.Join(exports, ", "))
	}

	dir, err := os.MkdirTemp("", "pagepack-provide-")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() { os.RemoveAll(dir) }
	shim := filepath.Join(dir, "provide.js")
	if err := os.WriteFile(shim, []byte(sb.String()), 0o644); err != nil {
		cleanup()
		return nil, noop, err
	}
	return []string{shim}, cleanup, nil
}

// resolveProvided returns the import specifier for module: an absolute path
// for project files, the bare name for installed packages.
func resolveProvided(root, module string) (string, bool) {
	if strings.HasPrefix(module, ".") || filepath.IsAbs(module) {
		abs := module
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, filepath.FromSlash(module))
		}
		if _, err := os.Stat(abs); err != nil {
			return "", false
		}
		return abs, true
	}
	pkg := module
	if strings.HasPrefix(pkg, "@") {
		parts := strings.SplitN(pkg, "/", 3)
		if len(parts) >= 2 {
			pkg = parts[0] + "/" + parts[1]
		}
	} else {
		pkg, _, _ = strings.Cut(pkg, "/")
	}
	if _, err := os.Stat(filepath.Join(root, "node_modules", filepath.FromSlash(pkg))); err != nil {
		return "", false
	}
	return module, true
}

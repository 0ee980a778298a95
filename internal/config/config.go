// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "pagepack.yaml"

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the configuration from the pagepack.yaml file.
type Config struct {
	Root        string            `yaml:"root"`
	Entries     []Entry           `yaml:"entries"`
	Output      Output            `yaml:"output"`
	Views       Views             `yaml:"views"`
	Rules       []Rule            `yaml:"rules"`
	Provide     map[string]string `yaml:"provide"`
	SplitChunks bool              `yaml:"splitChunks"`
	Targets     map[string]string `yaml:"targets"`
	Sass        Sass              `yaml:"sass"`
	DevServer   DevServer         `yaml:"devServer"`

	// Set by WithMode, never read from the file.
	Mode      Mode `yaml:"-"`
	Minify    bool `yaml:"-"`
	SourceMap bool `yaml:"-"`
	InlineMap bool `yaml:"-"`
}

// Entry is a named bundle built from one or more source files.
type Entry struct {
	Name   string   `yaml:"name"`
	Import []string `yaml:"import"`
}

// Output names files relative to Path. JS is the esbuild name pattern for
// entries and extracted stylesheets; CSS only moves stylesheets into another
// directory, so its file name part must equal the one in JS.
type Output struct {
	Path       string `yaml:"path"`
	PublicPath string `yaml:"publicPath"`
	JS         string `yaml:"js"`
	CSS        string `yaml:"css"`
}

type Views struct {
	Dir      string `yaml:"dir"`
	Pattern  string `yaml:"pattern"`
	Partials string `yaml:"partials"`
	Naming   string `yaml:"naming"`
	Inject   string `yaml:"inject"`
	Unsafe   bool   `yaml:"unsafe"`
}

// Rule copies matching files into OutputPath and rewrites references to
// PublicPath. Include and Exclude are plain substring tests on the path.
type Rule struct {
	Test       string `yaml:"test"`
	Include    string `yaml:"include"`
	Exclude    string `yaml:"exclude"`
	OutputPath string `yaml:"outputPath"`
	PublicPath string `yaml:"publicPath"`
}

type Sass struct {
	Binary      string `yaml:"binary"`
	OutputStyle string `yaml:"outputStyle"`
	SourceMap   bool   `yaml:"sourceMap"`
}

type DevServer struct {
	Host       string  `yaml:"host"`
	Port       int     `yaml:"port"`
	Compress   bool    `yaml:"compress"`
	Hot        bool    `yaml:"hot"`
	Open       bool    `yaml:"open"`
	Overlay    Overlay `yaml:"overlay"`
	UseLocalIP bool    `yaml:"useLocalIp"`
	Stats      string  `yaml:"stats"`
}

type Overlay struct {
	Warnings bool `yaml:"warnings"`
	Errors   bool `yaml:"errors"`
}

// Default mirrors the stock project layout: one "app" entry pulling in the
// script and the stylesheet, views under ./views, output under ./dist.
func Default() Config {
	return Config{
		Root: ".",
		Entries: []Entry{
			{Name: "app", Import: []string{"src/js/app.js", "src/scss/index.scss"}},
		},
		Output: Output{
			Path:       "dist",
			PublicPath: "/",
			JS:         "assets/js/[name].[hash]",
			CSS:        "assets/css/[name].[hash]",
		},
		Views: Views{
			Dir:      "views",
			Pattern:  "*.html",
			Partials: "views/partials",
			Naming:   "first-segment",
			Inject:   "body",
		},
		Rules: []Rule{
			{Test: `\.(eot|woff|woff2|[ot]tf)$`, OutputPath: "assets/fonts", PublicPath: "/assets/fonts/"},
			{Test: `\.svg$`, Include: "font", OutputPath: "assets/fonts", PublicPath: "/assets/fonts/"},
			{Test: `\.svg$`, Exclude: "font", OutputPath: "assets/images", PublicPath: "/assets/images/"},
			{Test: `\.(jpe?g|png|gif|webp)$`, OutputPath: "assets/images", PublicPath: "/assets/images/"},
		},
		Provide:     map[string]string{"$": "jquery", "jQuery": "jquery"},
		SplitChunks: true,
		Targets:     map[string]string{"chrome": "87", "firefox": "78", "safari": "14", "edge": "88"},
		Sass: Sass{
			Binary:      "sass",
			OutputStyle: "expanded",
			SourceMap:   true,
		},
		DevServer: DevServer{
			Host:       "0.0.0.0",
			Port:       9000,
			Hot:        true,
			Open:       true,
			Overlay:    Overlay{Warnings: true, Errors: true},
			UseLocalIP: true,
			Stats:      "minimal",
		},
	}
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	// Lists and maps replace the defaults wholesale; yaml.v3 would otherwise
	// keep trailing default elements and merge default map keys.
	var probe struct {
		Entries []Entry           `yaml:"entries"`
		Rules   []Rule            `yaml:"rules"`
		Provide map[string]string `yaml:"provide"`
		Targets map[string]string `yaml:"targets"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Config{}, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	if probe.Entries != nil {
		cfg.Entries = nil
	}
	if probe.Rules != nil {
		cfg.Rules = nil
	}
	if probe.Provide != nil {
		cfg.Provide = nil
	}
	if probe.Targets != nil {
		cfg.Targets = nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if len(c.Entries) == 0 {
		return fmt.Errorf("%w: at least one entry is required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Entries))
	for _, e := range c.Entries {
		if e.Name == "" {
			return fmt.Errorf("%w: entry without a name", ErrInvalidConfig)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate entry %q", ErrInvalidConfig, e.Name)
		}
		seen[e.Name] = true
		if len(e.Import) == 0 {
			return fmt.Errorf("%w: entry %q imports nothing", ErrInvalidConfig, e.Name)
		}
	}
	if c.Output.Path == "" {
		return fmt.Errorf("%w: output.path is empty", ErrInvalidConfig)
	}
	if c.Output.CSS != "" && path.Base(c.Output.CSS) != path.Base(c.Output.JS) {
		return fmt.Errorf("%w: output.css file name %q must match output.js %q; only the directory can differ",
			ErrInvalidConfig, path.Base(c.Output.CSS), path.Base(c.Output.JS))
	}
	for i, r := range c.Rules {
		if _, err := regexp.Compile(r.Test); err != nil {
			return fmt.Errorf("%w: rules[%d].test: %v", ErrInvalidConfig, i, err)
		}
		if r.OutputPath == "" {
			return fmt.Errorf("%w: rules[%d].outputPath is empty", ErrInvalidConfig, i)
		}
	}
	switch c.Views.Naming {
	case "", "first-segment", "trim-ext":
	default:
		return fmt.Errorf("%w: unknown views.naming %q", ErrInvalidConfig, c.Views.Naming)
	}
	switch c.Views.Inject {
	case "", "body", "head":
	default:
		return fmt.Errorf("%w: unknown views.inject %q", ErrInvalidConfig, c.Views.Inject)
	}
	if c.DevServer.Port < 0 || c.DevServer.Port > 65535 {
		return fmt.Errorf("%w: devServer.port %d out of range", ErrInvalidConfig, c.DevServer.Port)
	}
	switch c.DevServer.Stats {
	case "", "minimal", "normal", "none":
	default:
		return fmt.Errorf("%w: unknown devServer.stats %q", ErrInvalidConfig, c.DevServer.Stats)
	}
	return nil
}

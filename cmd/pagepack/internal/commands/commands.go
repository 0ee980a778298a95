package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"pagepack/internal/config"
	"pagepack/internal/logger"
)

type Globals struct {
	Debug   bool
	Config  string
	Mode    string
	Version string

	// Stdout receives command output; os.Stdout when nil.
	Stdout io.Writer
	// Logger overrides the logger built from Debug.
	Logger *zerolog.Logger
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) logger() zerolog.Logger {
	if g.Logger != nil {
		return *g.Logger
	}
	return logger.Setup(g.Debug)
}

// withLogger attaches the logger to ctx for packages that log through
// zerolog.Ctx.
func (g *Globals) withLogger(ctx context.Context) (context.Context, zerolog.Logger) {
	log := g.logger()
	return log.WithContext(ctx), log
}

// LoadEnv loads .env.local and .env from the config file's directory, the
// same directory a relative root is resolved against, and returns the build
// mode: the flag or process value when set, else NODE_ENV from the files.
func LoadEnv(configPath, mode string) (string, error) {
	if configPath == "" {
		configPath = config.DefaultFile
	}
	dir := filepath.Dir(configPath)
	if err := config.LoadEnvFiles(filepath.Join(dir, ".env.local"), filepath.Join(dir, ".env")); err != nil {
		return "", err
	}
	if mode == "" {
		mode = os.Getenv(config.ModeEnv)
	}
	return mode, nil
}

// loadConfig reads the config file, applies the build mode and validates.
// A relative root is taken relative to the config file.
func (g *Globals) loadConfig() (config.Config, error) {
	path := g.Config
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}

	mode, err := config.ParseMode(g.Mode)
	if err != nil {
		return config.Config{}, err
	}
	cfg = cfg.WithMode(mode)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

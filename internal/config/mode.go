package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// ModeEnv is the variable that selects the build mode.
const ModeEnv = "NODE_ENV"

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

var ErrUnknownMode = errors.New("unknown build mode")

// ParseMode accepts the two recognized values. Empty means production.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeProduction:
		return ModeProduction, nil
	case ModeDevelopment:
		return ModeDevelopment, nil
	}
	return "", fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownMode, s, ModeDevelopment, ModeProduction)
}

// ModeFromEnv reads NODE_ENV.
func ModeFromEnv() (Mode, error) {
	return ParseMode(os.Getenv(ModeEnv))
}

// LoadEnvFiles loads the given dotenv files, skipping any that do not exist.
// Variables already present in the process environment are kept.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("could not load env file %s: %w", p, err)
		}
	}
	return nil
}

// WithMode returns a copy of c with the mode-dependent options set.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	switch m {
	case ModeDevelopment:
		c.Minify = false
		c.SourceMap = true
		c.InlineMap = true
	default:
		c.Mode = ModeProduction
		c.Minify = true
		c.SourceMap = true
		c.InlineMap = false
	}
	return c
}

func (m Mode) IsProduction() bool { return m != ModeDevelopment }

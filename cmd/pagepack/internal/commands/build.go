package commands

import (
	"context"
	"fmt"

	"pagepack/internal/builder"
)

// BuildCmd bundles the entries and generates every page once.
type BuildCmd struct {
	NoClean bool `help:"Keep files already in the output directory."`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.loadConfig()
	if err != nil {
		return err
	}
	ctx, log := globals.withLogger(ctx)

	log.Info().Str("mode", string(cfg.Mode)).Msg("Building site")
	report, err := builder.Build(ctx, cfg, builder.BuildOptions{CleanDestination: !c.NoClean})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	for _, w := range report.Warnings {
		log.Warn().Msg(w.String())
	}
	log.Info().
		Str("build", report.ID).
		Int("pages", len(report.Pages)).
		Int("files", len(report.Files)).
		Dur("duration", report.Duration).
		Msg("Build successful")
	return nil
}

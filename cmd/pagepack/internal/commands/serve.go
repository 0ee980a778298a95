package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pagepack/internal/builder"
	"pagepack/internal/server"
)

// ServeCmd runs the dev server with rebuild on change and live reload.
type ServeCmd struct {
	Host   string `help:"Interface to listen on (overrides devServer.host)."`
	Port   int    `help:"Port to listen on (overrides devServer.port)." short:"p"`
	NoOpen bool   `help:"Do not open a browser."`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.loadConfig()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.DevServer.Host = c.Host
	}
	if c.Port != 0 {
		cfg.DevServer.Port = c.Port
	}
	if c.NoOpen {
		cfg.DevServer.Open = false
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, log := globals.withLogger(ctx)

	build := func(ctx context.Context, opts builder.BuildOptions) (*builder.Report, error) {
		return builder.Build(ctx, cfg, opts)
	}
	srv, err := server.New(cfg, globals.Config, build, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

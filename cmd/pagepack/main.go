package main

import (
	"context"

	"github.com/alecthomas/kong"

	"pagepack/cmd/pagepack/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build commands.BuildCmd `cmd:"" help:"Bundle the entries and generate the pages."`
		Serve commands.ServeCmd `cmd:"" help:"Run the dev server with rebuild and live reload."`
		Pages commands.PagesCmd `cmd:"" help:"List the pages generated from the views directory."`
		Init  commands.InitCmd  `cmd:"" help:"Create a starter project."`
		New   commands.NewCmd   `cmd:"" help:"Add a view from the archetype."`

		Config  string `help:"Path to the config file." default:"pagepack.yaml" type:"path" short:"c"`
		Mode    string `help:"Build mode: development or production." env:"NODE_ENV"`
		Debug   bool   `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("pagepack"),
		kong.Description("Bundle scripts and styles and generate one HTML page per view."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	mode, err := commands.LoadEnv(cli.Config, cli.Mode)
	cmd.FatalIfErrorf(err)
	err = cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Config:  cli.Config,
		Mode:    mode,
		Version: version,
	})
	cmd.FatalIfErrorf(err)
}

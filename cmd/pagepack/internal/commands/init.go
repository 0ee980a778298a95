package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"pagepack/internal/scaffold"
)

// InitCmd writes a starter project.
type InitCmd struct {
	Dir string `arg:"" optional:"" help:"Directory to create the project in." default:"."`
}

func (c *InitCmd) Run(ctx context.Context, globals *Globals) error {
	files, err := scaffold.CreateNewProject(c.Dir, globals.logger())
	if err != nil {
		return err
	}

	out := globals.stdout()
	for _, f := range files {
		fmt.Fprintln(out, "Created:", filepath.Join(c.Dir, f))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Project scaffolded. You can now:")
	if c.Dir != "." {
		fmt.Fprintln(out, "  cd", c.Dir)
	}
	fmt.Fprintln(out, "  NODE_ENV=development pagepack serve")
	fmt.Fprintln(out, "  pagepack build")
	return nil
}

// NewCmd adds a view to the configured views directory.
type NewCmd struct {
	Title string `arg:"" help:"Title of the new page; its slug becomes the file name."`
}

func (c *NewCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Views.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Root, dir)
	}
	path, err := scaffold.NewView(dir, c.Title)
	if err != nil {
		return err
	}
	fmt.Fprintln(globals.stdout(), "Created:", path)
	return nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pagepack/internal/builder"
	"pagepack/internal/views"
)

// PagesCmd prints the page configs derived from the views directory.
type PagesCmd struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (c *PagesCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := globals.loadConfig()
	if err != nil {
		return err
	}
	pages, err := builder.DiscoverPages(cfg)
	if err != nil {
		return err
	}

	if c.JSON {
		if pages == nil {
			pages = []views.PageConfig{}
		}
		enc := json.NewEncoder(globals.stdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pages)
	}

	out := globals.stdout()
	if len(pages) == 0 {
		fmt.Fprintln(out, "No views found.")
		return nil
	}
	fmt.Fprintf(out, "%-30s %-20s %-20s %-6s %-6s\n", "Template", "Filename", "Title", "Inject", "Minify")
	fmt.Fprintln(out, strings.Repeat("─", 86))
	for _, p := range pages {
		fmt.Fprintf(out, "%-30s %-20s %-20s %-6s %-6t\n", p.TemplatePath, p.Filename, p.Title, p.Inject, p.Minify)
	}
	return nil
}

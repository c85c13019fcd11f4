package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/scaffold"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Dir   string `arg:"" optional:"" default:"." type:"path" help:"Directory to initialize"`
	Force bool   `help:"Overwrite existing files"`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	return RunInit(g, i.Dir, i.Force)
}

// RunInit writes the starter tree into dir.
func RunInit(g *Global, dir string, force bool) error {
	out := g.stdout()
	_, _ = fmt.Fprintf(out, "Initializing teadocs project in %s\n", dir)
	written, err := scaffold.Write(dir, force)
	if err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	for _, rel := range written {
		g.Logger.Debug("Wrote starter file", logfields.Path(rel))
		_, _ = fmt.Fprintf(out, "  created %s\n", filepath.FromSlash(rel))
	}
	_, _ = fmt.Fprintf(out, "initialized successfully; run `teadocs dev %s` to preview\n", dir)
	return nil
}

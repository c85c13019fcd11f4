package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/teadocs/cmd/teadocs/commands"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cli commands.CLI
	g := &commands.Global{Logger: slog.Default(), Stdout: os.Stdout, Stderr: os.Stderr}

	parser, err := kong.New(&cli,
		kong.Name("teadocs"),
		kong.Description("Compile a tree of Markdown files into a static documentation site."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
	)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}

	err = ctx.Run(&cli)
	return errors.NewCLIErrorAdapter(cli.Verbose, g.Logger).Report(g.Stderr, err)
}

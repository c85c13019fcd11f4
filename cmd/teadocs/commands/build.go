package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/teadocs/internal/build"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/metrics"
	"git.home.luguber.info/inful/teadocs/internal/notify"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Dir    string `arg:"" optional:"" default:"." type:"path" help:"Content root"`
	Dest   string `short:"d" name:"dest" type:"path" help:"Output directory (default: output.dir or ./build)"`
	Report string `name:"report" type:"path" help:"Write the build report as JSON to this file"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return b.run(ctx, g, root)
}

func (b *BuildCmd) run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g, b.Dir)
	if err != nil {
		return err
	}
	out, err := ResolveOutputDir(b.Dest, cfg)
	if err != nil {
		return err
	}

	note, err := notify.New(cfg.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := note.Close(); cerr != nil {
			g.Logger.Warn("Failed to close notifier", logfields.Error(cerr))
		}
	}()

	g.Logger.Info("Starting build", logfields.Root(cfg.Root), logfields.Output(out),
		logfields.Theme(string(cfg.Theme)), slog.Bool("strict", cfg.Strict))

	builder := build.New(cfg, build.Options{
		Logger:   g.Logger,
		Metrics:  metrics.NewPrometheusRecorder(prometheus.NewRegistry()),
		Notifier: note,
	})
	report, buildErr := builder.Build(ctx, cfg.Root, out)

	if report != nil {
		for _, w := range report.Warnings {
			_, _ = fmt.Fprintf(g.stderr(), "warning: %v\n", w)
		}
		_, _ = fmt.Fprintln(g.stderr(), report.Summary())
		if b.Report != "" {
			if err := report.Persist(b.Report); err != nil {
				g.Logger.Warn("Failed to write build report", logfields.Path(b.Report), logfields.Error(err))
			}
		}
	}
	return buildErr
}

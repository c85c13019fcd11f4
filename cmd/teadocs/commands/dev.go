package commands

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/teadocs/internal/devserver"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/metrics"
	"git.home.luguber.info/inful/teadocs/internal/notify"
)

// DevCmd implements the 'dev' command.
type DevCmd struct {
	Dir  string `arg:"" optional:"" default:"." type:"path" help:"Content root"`
	Host string `short:"H" help:"Listen address (default: dev.host or 0.0.0.0)"`
	Port int    `short:"p" help:"Listen port (default: dev.port or 3210)"`
}

func (d *DevCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return d.run(ctx, g, root)
}

func (d *DevCmd) run(ctx context.Context, g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g, d.Dir)
	if err != nil {
		return err
	}
	host, port := cfg.Dev.Host, cfg.Dev.Port
	if d.Host != "" {
		host = d.Host
	}
	if d.Port != 0 {
		port = d.Port
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := devserver.New(ctx, cfg, devserver.Options{
		ConfigFile: root.Config,
		Logger:     g.Logger,
		Metrics:    metrics.NewPrometheusRecorder(reg),
		Gatherer:   reg,
		Notifier:   note,
	})
	if err != nil {
		return err
	}

	display := host
	if host == "0.0.0.0" || host == "" {
		display = "localhost"
	}
	_, _ = fmt.Fprintf(g.stdout(), "Starting dev server for %s on http://%s/\n", cfg.Root, net.JoinHostPort(display, strconv.Itoa(port)))
	return srv.Start(ctx, host, port)
}

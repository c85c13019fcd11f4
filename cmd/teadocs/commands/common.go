package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Global) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) stderr() io.Writer {
	if g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" type:"path" env:"TEADOCS_CONFIG" help:"Configuration file (default: teadocs.yaml in the content root)"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" enum:",text,json" default:"" env:"TEADOCS_LOG_FORMAT" help:"Log output format (text or json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build BuildCmd `cmd:"" help:"Build the static site once"`
	Dev   DevCmd   `cmd:"" help:"Serve the site with on-demand generation and live reload"`
	Init  InitCmd  `cmd:"" help:"Write a starter documentation tree"`
}

// AfterApply runs after flag parsing and installs a flag-only logger; commands
// refine it once the configuration is known.
func (c *CLI) AfterApply(g *Global) error {
	c.setupLogging(g, config.LoggingConfig{})
	return nil
}

// setupLogging installs the default logger. Flags take precedence over the
// logging section of the configuration.
func (c *CLI) setupLogging(g *Global, lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch config.NormalizeLogLevel(string(lc.Level)) {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	format := config.NormalizeLogFormat(string(lc.Format))
	if c.LogFormat != "" {
		format = config.NormalizeLogFormat(c.LogFormat)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(g.stderr(), opts)
	} else {
		handler = slog.NewTextHandler(g.stderr(), opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	g.Logger = logger
	return logger
}

// loadConfig reads the configuration for the content root dir and applies
// its logging section.
func (c *CLI) loadConfig(g *Global, dir string) (*config.Config, error) {
	cfg, err := config.Load(dir, c.Config)
	if err != nil {
		return nil, err
	}
	c.setupLogging(g, cfg.Logging)
	return cfg, nil
}

// ResolveOutputDir picks the build destination: the flag when given, else the
// configured output.dir.
func ResolveOutputDir(flag string, cfg *config.Config) (string, error) {
	out, err := cfg.OutputPath(flag)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "resolve output directory").Build()
	}
	return out, nil
}

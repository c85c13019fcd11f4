package config

import (
	stderrors "errors"
	"fmt"
	"path"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// Validate checks cfg after defaults have been applied. All problems are
// reported together as one ConfigError.
func Validate(cfg *Config) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if _, err := themeNormalizer.Parse(string(cfg.Theme)); err != nil {
		add("theme: %w", err)
	}
	if _, err := styleNormalizer.Parse(string(cfg.Output.Style)); err != nil {
		add("output.style: %w", err)
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		add("output.dir must not be empty")
	}
	if cfg.Dev.Port < 0 || cfg.Dev.Port > 65535 {
		add("dev.port %d out of range", cfg.Dev.Port)
	}
	if cfg.Dev.Debounce < 0 {
		add("dev.debounce must not be negative")
	}
	if cfg.Dev.MaxDelay < cfg.Dev.Debounce {
		add("dev.max_delay (%s) must be at least dev.debounce (%s)", cfg.Dev.MaxDelay, cfg.Dev.Debounce)
	}
	if cfg.Dev.QueueSize < 1 {
		add("dev.queue_size must be positive")
	}
	if cfg.Dev.ResyncInterval < 0 {
		add("dev.resync_interval must not be negative")
	}
	if _, err := backoffNormalizer.Parse(string(cfg.Notify.Backoff)); err != nil {
		add("notify.backoff: %w", err)
	}
	if cfg.Notify.RetryDelay < 0 {
		add("notify.retry_delay must not be negative")
	}
	for _, p := range cfg.Ignore {
		if _, err := path.Match(p, ""); err != nil {
			add("ignore pattern %q: %w", p, err)
		}
	}
	for i, d := range cfg.Assets.Dirs {
		if d == "" || d == "." || strings.HasPrefix(d, "../") || d == ".." {
			add("assets.dirs[%d] %q must be a directory inside the content root", i, d)
		}
	}
	for k := range cfg.Vars {
		if !validVarName(k) {
			add("vars: invalid name %q", k)
		}
	}
	validateNav(cfg.Nav, "nav", add)

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapError(stderrors.Join(problems...), errors.CategoryConfig, "configuration validation failed").
		WithPath(cfg.File).Fatal().Build()
}

func validateNav(items []NavItem, prefix string, add func(string, ...any)) {
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		targets := 0
		if item.Route != "" {
			targets++
		}
		if item.URL != "" {
			targets++
		}
		if len(item.Children) > 0 {
			targets++
		}
		switch {
		case targets == 0 && item.Title == "":
			add("%s: empty entry", field)
		case item.Route != "" && item.URL != "":
			add("%s: route and url are mutually exclusive", field)
		case item.URL != "" && item.Title == "":
			add("%s: external link needs a title", field)
		case len(item.Children) > 0 && item.Title == "" && item.Route == "":
			add("%s: group needs a title or route", field)
		}
		validateNav(item.Children, field+".children", add)
	}
}

func validVarName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

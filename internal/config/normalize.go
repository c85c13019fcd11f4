package config

import (
	"fmt"
	"path"
	"strings"
)

// normalize case-folds enumerations and canonicalizes paths. Unknown
// enumeration values are left as written for Validate to reject. It returns
// human readable notes for every value it changed.
func normalize(cfg *Config) []string {
	var notes []string
	note := func(field, from, to string) {
		if from != to {
			notes = append(notes, fmt.Sprintf("%s: %q -> %q", field, from, to))
		}
	}

	if t, err := themeNormalizer.Parse(string(cfg.Theme)); err == nil && cfg.Theme != "" {
		note("theme", string(cfg.Theme), string(t))
		cfg.Theme = t
	}
	if s, err := styleNormalizer.Parse(string(cfg.Output.Style)); err == nil && cfg.Output.Style != "" {
		note("output.style", string(cfg.Output.Style), string(s))
		cfg.Output.Style = s
	}
	if b, err := backoffNormalizer.Parse(string(cfg.Notify.Backoff)); err == nil && cfg.Notify.Backoff != "" {
		note("notify.backoff", string(cfg.Notify.Backoff), string(b))
		cfg.Notify.Backoff = b
	}
	if cfg.Logging.Level != "" {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}

	if cfg.BaseURL != "" {
		b := NormalizeBaseURL(cfg.BaseURL)
		note("base_url", cfg.BaseURL, b)
		cfg.BaseURL = b
	}
	for i, r := range cfg.Nav {
		cfg.Nav[i] = normalizeNav(r)
	}
	for i, d := range cfg.Assets.Dirs {
		cfg.Assets.Dirs[i] = strings.Trim(path.Clean(strings.ReplaceAll(d, "\\", "/")), "/")
	}
	return notes
}

// NormalizeBaseURL returns base with exactly one leading and one trailing
// slash. Absolute URLs keep their scheme and host.
func NormalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if strings.Contains(base, "://") {
		return strings.TrimRight(base, "/") + "/"
	}
	base = strings.Trim(base, "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}

func normalizeNav(item NavItem) NavItem {
	item.Title = strings.TrimSpace(item.Title)
	item.Route = strings.ToLower(strings.Trim(strings.TrimSpace(item.Route), "/"))
	for i, c := range item.Children {
		item.Children[i] = normalizeNav(c)
	}
	return item
}

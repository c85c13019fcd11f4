// Package config loads the site configuration (teadocs.yaml) for one content
// root. A Config is loaded once per build or dev session and passed to every
// component explicitly.
package config

import (
	"path/filepath"
	"time"
)

// FileNames are the configuration file names looked up in the content root,
// in order.
var FileNames = []string{"teadocs.yaml", "teadocs.yml"}

// Config is the site configuration.
type Config struct {
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	BaseURL     string            `yaml:"base_url"`
	Theme       Theme             `yaml:"theme"`
	Strict      bool              `yaml:"strict"`
	Drafts      bool              `yaml:"drafts"`
	GitInfo     bool              `yaml:"git_info"`
	Output      OutputConfig      `yaml:"output"`
	Markdown    MarkdownConfig    `yaml:"markdown"`
	Nav         []NavItem         `yaml:"nav,omitempty"`
	Assets      AssetsConfig      `yaml:"assets"`
	Vars        map[string]string `yaml:"vars,omitempty"`
	Ignore      []string          `yaml:"ignore,omitempty"`
	Cache       CacheConfig       `yaml:"cache"`
	Dev         DevConfig         `yaml:"dev"`
	Notify      NotifyConfig      `yaml:"notify"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Root is the absolute content root. File is the configuration file that
	// was read, empty when defaults were used.
	Root string `yaml:"-"`
	File string `yaml:"-"`
}

// OutputConfig controls where and how pages are written.
type OutputConfig struct {
	Dir   string      `yaml:"dir"`
	Style OutputStyle `yaml:"style"`
}

// Suffixes of the sibling directories a build uses next to its output.
const (
	StageSuffix  = "_stage"
	BackupSuffix = ".prev"
)

// OutputPath resolves the build destination: override when given, else
// output.dir, else DefaultOutputDir. Relative paths are taken from the
// working directory, never from the content root.
func (c *Config) OutputPath(override string) (string, error) {
	dir := override
	if dir == "" {
		dir = c.Output.Dir
	}
	if dir == "" {
		dir = DefaultOutputDir
	}
	return filepath.Abs(dir)
}

// OutputDirs returns out with its staging and backup siblings.
func OutputDirs(out string) []string {
	return []string{out, out + StageSuffix, out + BackupSuffix}
}

// MarkdownConfig holds compiler options.
type MarkdownConfig struct {
	UnsafeHTML bool  `yaml:"unsafe_html"`
	HardWraps  bool  `yaml:"hard_wraps"`
	Highlight  *bool `yaml:"highlight,omitempty"`
}

// HighlightEnabled reports whether fenced code is highlighted at compile time.
func (m MarkdownConfig) HighlightEnabled() bool {
	return m.Highlight == nil || *m.Highlight
}

// NavItem is a navigation override. Route points at a page, URL at an
// external link, Children builds a group.
type NavItem struct {
	Title    string    `yaml:"title"`
	Route    string    `yaml:"route,omitempty"`
	URL      string    `yaml:"url,omitempty"`
	Children []NavItem `yaml:"children,omitempty"`
}

// AssetsConfig configures the asset pipeline.
type AssetsConfig struct {
	Dirs        []string `yaml:"dirs"`
	Fingerprint bool     `yaml:"fingerprint"`
	Minify      bool     `yaml:"minify"`
	Stylesheets []string `yaml:"stylesheets,omitempty"`
	Scripts     []string `yaml:"scripts,omitempty"`
}

// CacheConfig configures the persistent compile cache. An empty Path keeps
// the cache in memory only.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// DevConfig configures the dev server.
type DevConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Debounce       time.Duration `yaml:"debounce"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	QueueSize      int           `yaml:"queue_size"`
	LiveReload     *bool         `yaml:"live_reload,omitempty"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	Metrics        bool          `yaml:"metrics"`
}

// LiveReloadEnabled reports whether pages get the reload hook.
func (d DevConfig) LiveReloadEnabled() bool {
	return d.LiveReload == nil || *d.LiveReload
}

// NotifyConfig configures build event publishing. An empty NATSURL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`

	// Failed publishes are retried MaxRetries times with Backoff growth
	// starting at RetryDelay.
	MaxRetries int           `yaml:"max_retries"`
	Backoff    BackoffMode   `yaml:"backoff"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// LoggingConfig configures the default log level and format. CLI flags win.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

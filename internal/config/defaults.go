package config

import "time"

// Default values.
const (
	DefaultTitle         = "Documentation"
	DefaultOutputDir     = "build"
	DefaultAssetDir      = "static"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 3210
	DefaultDebounce      = 200 * time.Millisecond
	DefaultMaxDelay      = 2 * time.Second
	DefaultQueueSize     = 256
	DefaultNotifySubject = "teadocs.events"
	DefaultNotifyRetries = 2
	DefaultRetryDelay    = 250 * time.Millisecond
)

func applyDefaults(cfg *Config) {
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/"
	}
	if cfg.Theme == "" {
		cfg.Theme = ThemeDefault
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Output.Style == "" {
		cfg.Output.Style = StyleDirectory
	}
	if cfg.Assets.Dirs == nil {
		cfg.Assets.Dirs = []string{DefaultAssetDir}
	}
	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}

	d := &cfg.Dev
	if d.Host == "" {
		d.Host = DefaultHost
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if d.Debounce == 0 {
		d.Debounce = DefaultDebounce
	}
	if d.MaxDelay == 0 {
		d.MaxDelay = DefaultMaxDelay
	}
	if d.QueueSize == 0 {
		d.QueueSize = DefaultQueueSize
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}
	// A negative max_retries disables retries.
	if cfg.Notify.MaxRetries == 0 {
		cfg.Notify.MaxRetries = DefaultNotifyRetries
	}
	if cfg.Notify.Backoff == "" {
		cfg.Notify.Backoff = BackoffLinear
	}
	if cfg.Notify.RetryDelay == 0 {
		cfg.Notify.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

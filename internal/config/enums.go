package config

import "git.home.luguber.info/inful/teadocs/internal/foundation/normalization"

// Theme names a renderer variant.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeMinimal Theme = "minimal"
)

var themeNormalizer = normalization.NewNormalizer(map[string]Theme{
	"default": ThemeDefault,
	"sidebar": ThemeDefault,
	"minimal": ThemeMinimal,
}, ThemeDefault)

// OutputStyle selects how routes map to files.
type OutputStyle string

const (
	// StyleDirectory writes route/index.html and links to route/.
	StyleDirectory OutputStyle = "directory"
	// StyleFile writes route.html and links to route.html.
	StyleFile OutputStyle = "file"
)

var styleNormalizer = normalization.NewNormalizer(map[string]OutputStyle{
	"directory": StyleDirectory,
	"dir":       StyleDirectory,
	"pretty":    StyleDirectory,
	"file":      StyleFile,
	"flat":      StyleFile,
}, StyleDirectory)

// BackoffMode selects how retry delays grow.
type BackoffMode string

const (
	BackoffFixed       BackoffMode = "fixed"
	BackoffLinear      BackoffMode = "linear"
	BackoffExponential BackoffMode = "exponential"
)

var backoffNormalizer = normalization.NewNormalizer(map[string]BackoffMode{
	"fixed":       BackoffFixed,
	"constant":    BackoffFixed,
	"linear":      BackoffLinear,
	"exponential": BackoffExponential,
	"exp":         BackoffExponential,
}, BackoffLinear)

// NormalizeBackoff maps raw onto a BackoffMode, defaulting to linear.
func NormalizeBackoff(raw string) BackoffMode { return backoffNormalizer.Normalize(raw) }

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

// NormalizeLogLevel maps raw onto a LogLevel, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel { return logLevelNormalizer.Normalize(raw) }

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

// NormalizeLogFormat maps raw onto a LogFormat, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat { return logFormatNormalizer.Normalize(raw) }

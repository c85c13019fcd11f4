package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// CLIErrorAdapter handles error presentation and exit code determination for
// the command line.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the exit code for an error. Joined errors use the
// code of the first fatal member, else of the first classified one.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var first *ClassifiedError
	for _, e := range Flatten(err) {
		classified, ok := AsClassified(e)
		if !ok {
			continue
		}
		if classified.IsFatal() {
			return exitCodeFromCategory(classified.Category())
		}
		if first == nil {
			first = classified
		}
	}
	if first != nil {
		return exitCodeFromCategory(first.Category())
	}
	return 1
}

func exitCodeFromCategory(c ErrorCategory) int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryContent:
		return 3
	case CategoryCompile:
		return 4
	case CategoryAsset:
		return 5
	case CategoryIO:
		return 6
	case CategoryConfig:
		return 7
	case CategoryNotFound:
		return 9
	case CategoryInternal:
		return 10
	case CategoryRuntime:
		return 12
	default:
		return 1
	}
}

// FormatError formats an error for display. Joined errors are listed one
// per line.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	errs := Flatten(err)
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, a.formatOne(e))
	}
	return strings.Join(lines, "\n")
}

func (a *CLIErrorAdapter) formatOne(err error) string {
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return classified.Error()
	}
	msg := classified.Message()
	if loc := classified.location(); loc != "" {
		msg = loc + ": " + msg
	}
	if classified.Cause() != nil && classified.Category() != CategoryInternal {
		msg += ": " + classified.Cause().Error()
	}
	return fmt.Sprintf("Error (%s): %s", classified.Category(), msg)
}

// Report logs the error and writes the user-facing message to w, returning
// the exit code. main decides when to exit.
func (a *CLIErrorAdapter) Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	for _, e := range Flatten(err) {
		a.logError(e)
	}
	_, _ = fmt.Fprintln(w, a.FormatError(err))
	return a.ExitCodeFor(err)
}

func (a *CLIErrorAdapter) logError(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Debug("Unclassified error", "error", err)
		return
	}
	attrs := []slog.Attr{slog.String("category", string(classified.Category()))}
	if p := classified.Path(); p != "" {
		attrs = append(attrs, slog.String(KeyPath, p))
	}
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, classified.Message(), attrs...)
}

// SlogLevel converts a severity to a slog level.
func SlogLevel(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

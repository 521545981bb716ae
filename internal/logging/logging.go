// Package logging wraps charmbracelet/log into the collector's structured
// logger: a package-level logger var, a Setup entry point driven by the
// root command's -v/--verbose flag, free Debug/Info/Warn/Error functions,
// and a per-component Module logger for prefixed child loggers (sources,
// sinks, extractors each get their own prefix).
package logging

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

var moduleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
var dimStyle = lipgloss.NewStyle().Faint(true)

// Setup configures the global logger. verbose turns on debug level and
// caller reporting (timestamps are always on); the collector has no env-parsed
// verbosity string (no RUST_LOG analog in scope), just this one flag.
func Setup(verbose bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    verbose,
		TimeFormat:      "15:04:05",
	})
}

// Module returns a child logger scoped to a named component (a source, a
// sink, an extractor), prefixed "m:<name>".
func Module(name string) *log.Logger {
	prefix := fmt.Sprintf("%s%s", dimStyle.Render("m:"), moduleStyle.Render(name))
	return logger.WithPrefix(prefix)
}

func Debug(msg string, keyvals ...any) { logger.Debug(msg, keyvals...) }
func Info(msg string, keyvals ...any)  { logger.Info(msg, keyvals...) }
func Warn(msg string, keyvals ...any)  { logger.Warn(msg, keyvals...) }
func Error(msg string, keyvals ...any) { logger.Error(msg, keyvals...) }

// Logger returns the current global logger, for callers that need to pass
// a *log.Logger value down (e.g. to a sink constructor).
func Logger() *log.Logger { return logger }

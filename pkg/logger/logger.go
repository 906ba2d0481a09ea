// Package logger builds the structured loggers used by the datamap binaries.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	// Debug enables debug level output.
	Debug bool
	// Format is "json" (default), "logfmt" or "text".
	Format string
	// Component is attached to every line as component=<value>.
	Component string
	// Output defaults to stderr.
	Output io.Writer
}

// New creates a logger. JSON is the default so daemon output stays
// machine-readable.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       ParseFormat(opts.Format),
	})
	if opts.Component != "" {
		l = l.With("component", opts.Component)
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests and by library
// callers that pass no logger.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// ParseFormat maps a format name to a charmbracelet/log formatter.
func ParseFormat(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "console":
		return log.TextFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.JSONFormatter
	}
}

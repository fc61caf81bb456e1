// Package logging builds the slog loggers used by the server and the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Format names accepted by WithFormat.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

type config struct {
	level   slog.Level
	format  string
	writers []io.Writer
	source  bool
}

// Option configures a logger created with New.
type Option func(*config)

// WithLevel sets the minimum level.
func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithDebug sets the level to Debug when true, Info otherwise.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithFormat picks the handler: text, json or pretty (charmbracelet/log).
func WithFormat(format string) Option {
	return func(c *config) { c.format = strings.ToLower(format) }
}

// WithWriter overrides the output writer. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters sets multiple output writers (combined via io.MultiWriter).
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource includes source file:line in log output.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// New returns a logger configured by opts.
func New(opts ...Option) *slog.Logger {
	c := &config{level: slog.LevelInfo, format: FormatText}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stderr
	switch len(c.writers) {
	case 0:
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	switch c.format {
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	case FormatPretty:
		h := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
		return slog.New(h)
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source}))
	}
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

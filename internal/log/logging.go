// Package log provides helpers for creating a configured slog.Logger.
//
// When a log file path is not provided, logs are written to stdout for
// non-error levels and to stderr for errors (so stderr can be used for
// error redirection while keeping normal logs on stdout).
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace defines a custom slog level below Debug for per-tick output.
const LevelTrace slog.Level = -8

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// fanout sends records to every handler that accepts them.
type fanout []slog.Handler

// Fanout combines handlers into one.
func Fanout(hs ...slog.Handler) slog.Handler { return fanout(hs) }

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// errorSplit passes either only error records or only non-error records to h.
type errorSplit struct {
	errors bool
	h      slog.Handler
}

func (e errorSplit) pass(level slog.Level) bool { return (level >= slog.LevelError) == e.errors }

func (e errorSplit) Enabled(ctx context.Context, level slog.Level) bool {
	return e.pass(level) && e.h.Enabled(ctx, level)
}

func (e errorSplit) Handle(ctx context.Context, r slog.Record) error {
	if !e.pass(r.Level) {
		return nil
	}
	return e.h.Handle(ctx, r)
}

func (e errorSplit) WithAttrs(attrs []slog.Attr) slog.Handler {
	return errorSplit{errors: e.errors, h: e.h.WithAttrs(attrs)}
}

func (e errorSplit) WithGroup(name string) slog.Handler {
	return errorSplit{errors: e.errors, h: e.h.WithGroup(name)}
}

// Options selects the log level, output file and record format.
type Options struct {
	Level  string
	File   string
	Format string // text or json
	Stdout io.Writer
	Stderr io.Writer
}

func newHandler(format string, w io.Writer, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: renameTrace}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func renameTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// SetupLogger builds a slog.Logger with console and optional file handlers.
// The returned closers must be closed on shutdown.
func SetupLogger(o Options) (*slog.Logger, []io.Closer, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	stdout, stderr := o.Stdout, o.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	var handlers []slog.Handler
	if o.File == "" {
		out, err := newHandler(o.Format, stdout, level)
		if err != nil {
			return nil, nil, err
		}
		errOut, _ := newHandler(o.Format, stderr, slog.LevelError)
		handlers = append(handlers,
			errorSplit{errors: false, h: out},
			errorSplit{errors: true, h: errOut},
		)
	} else {
		h, err := newHandler(o.Format, stderr, level)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, h)
	}

	var closers []io.Closer
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f)
		h, _ := newHandler(o.Format, f, level)
		handlers = append(handlers, h)
	}
	return slog.New(Fanout(handlers...)), closers, nil
}

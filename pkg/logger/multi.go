package logger

import (
	"context"
	"errors"
	"log/slog"
)

// tee sends each record to every handler that accepts its level. serve pairs
// the console logger with the JSON --log-file logger through it.
type tee []slog.Handler

// Multi returns a logger writing to every non-nil logger in loggers. A
// failing sink does not keep the record from the others; Handle joins their
// errors.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var t tee
	for _, l := range loggers {
		if l != nil {
			t = append(t, l.Handler())
		}
	}
	if len(t) == 1 {
		return slog.New(t[0])
	}
	return slog.New(t)
}

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t tee) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t tee) each(fn func(slog.Handler) slog.Handler) tee {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}

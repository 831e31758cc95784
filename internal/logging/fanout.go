package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Sink names used by Setup.
const (
	SinkConsole = "console"
	SinkFile    = "file"
	SinkGELF    = "gelf"
	SinkOTel    = "otel"
)

// Sink is one named log destination.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// Fanout delivers each record to every sink enabled for its level. A sink
// that fails is counted and the record still reaches the remaining sinks, so
// an unreachable Graylog never silences the log file.
type Fanout struct {
	sinks    []Sink
	failures map[string]*atomic.Uint64 // shared by WithAttrs/WithGroup copies
}

// NewFanout skips sinks with a nil handler.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{failures: make(map[string]*atomic.Uint64)}
	for _, s := range sinks {
		if s.Handler == nil {
			continue
		}
		f.sinks = append(f.sinks, s)
		f.failures[s.Name] = new(atomic.Uint64)
	}
	return f
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle returns the joined errors of the sinks that failed.
func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			f.failures[s.Name].Add(1)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *Fanout) derive(fn func(slog.Handler) slog.Handler) *Fanout {
	sinks := make([]Sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = Sink{Name: s.Name, Handler: fn(s.Handler)}
	}
	return &Fanout{sinks: sinks, failures: f.failures}
}

// Failures returns how many records each sink has failed to write.
func (f *Fanout) Failures() map[string]uint64 {
	out := make(map[string]uint64, len(f.failures))
	for name, n := range f.failures {
		out[name] = n.Load()
	}
	return out
}

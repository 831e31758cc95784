package logging

import (
	"context"
	"log/slog"
)

// Keys of the attributes SessionHandler stamps on records.
const (
	RunKey   = "run"
	PeersKey = "peers"
)

// Session reports the live simulator state every record is stamped with.
// Implementations must be safe for concurrent use.
type Session interface {
	RunID() string
	Peers() int
}

// SessionHandler stamps the active run id and the connected peer count on
// each record before passing it on. The run attribute is left out until a
// run has started.
type SessionHandler struct {
	inner   slog.Handler
	session Session
}

// NewSessionHandler wraps inner.
func NewSessionHandler(inner slog.Handler, s Session) *SessionHandler {
	return &SessionHandler{inner: inner, session: s}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := h.session.RunID(); id != "" {
		r.AddAttrs(slog.String(RunKey, id))
	}
	r.AddAttrs(slog.Int(PeersKey, h.session.Peers()))
	return h.inner.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SessionHandler{inner: h.inner.WithAttrs(attrs), session: h.session}
}

func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SessionHandler{inner: h.inner.WithGroup(name), session: h.session}
}

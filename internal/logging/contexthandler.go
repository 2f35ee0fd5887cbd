package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes describing the current run. It is
// called for every record and must be safe for concurrent use.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to each record before
// passing it on. Enabled comes from the wrapped handler.
type ContextHandler struct {
	slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{Handler: inner, provider: provider}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{Handler: h.Handler.WithGroup(name), provider: h.provider}
}

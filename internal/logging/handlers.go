package logging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
)

// ContextProvider returns attributes that change while the server runs,
// such as the round being recorded.
type ContextProvider func() []slog.Attr

// contextHandler appends the provider's attributes to every record, grouped
// under key.
type contextHandler struct {
	next     slog.Handler
	key      string
	provider ContextProvider
}

func newContextHandler(next slog.Handler, key string, provider ContextProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return &contextHandler{next: next, key: key, provider: provider}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(slog.Attr{Key: h.key, Value: slog.GroupValue(attrs...)})
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	return &c
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	return &c
}

// fanout hands every record to each handler enabled for its level. A
// failing handler does not keep the record from the others.
type fanout []slog.Handler

func newFanout(handlers ...slog.Handler) fanout {
	return slices.DeleteFunc(slices.Clone(handlers), func(h slog.Handler) bool { return h == nil })
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(f, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

package formatter

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/al-bashkir/securelog/internal/value"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Level is the minimum level logged. Defaults to slog.LevelInfo.
	Level slog.Leveler
	// Name is written as logger_name on every record.
	Name string
}

// Handler is a slog.Handler that writes one Formatter record per line.
type Handler struct {
	f      *Formatter
	opts   HandlerOptions
	mu     *sync.Mutex
	w      io.Writer
	scopes []scope
	groups []string
}

// scope holds attributes added with WithAttrs under the groups open at
// the time.
type scope struct {
	groups []string
	attrs  []slog.Attr
}

// NewHandler returns a Handler writing records formatted by f to w.
func NewHandler(w io.Writer, f *Formatter, opts *HandlerOptions) *Handler {
	h := &Handler{f: f, mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled reports whether level is at or above the configured minimum.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats r as one secure record and writes it with a trailing newline.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	tree := make(map[string]any)
	for _, s := range h.scopes {
		insertAttrs(tree, s.groups, s.attrs)
	}
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	insertAttrs(tree, h.groups, attrs)

	fields := make(map[string]value.Value, len(tree))
	for k, v := range tree {
		fields[k] = value.Of(v)
	}

	line := h.f.Format(LogEvent{
		Timestamp:   r.Time,
		Level:       r.Level.String(),
		LoggerName:  h.opts.Name,
		Message:     r.Message,
		ExtraFields: fields,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// WithAttrs returns a handler that adds attrs under the current groups.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.scopes = append(h.scopes[:len(h.scopes):len(h.scopes)], scope{
		groups: h.groups[:len(h.groups):len(h.groups)],
		attrs:  append([]slog.Attr(nil), attrs...),
	})
	return &h2
}

// WithGroup returns a handler that nests later attributes under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &h2
}

// insertAttrs adds attrs to tree under the nested groups. Empty groups are
// omitted, as slog requires.
func insertAttrs(tree map[string]any, groups []string, attrs []slog.Attr) {
	if len(attrs) == 0 {
		return
	}
	cur := tree
	for _, g := range groups {
		next, ok := cur[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[g] = next
		}
		cur = next
	}
	for _, a := range attrs {
		addAttr(cur, a)
	}
}

func addAttr(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		m[a.Key] = a.Value.Any()
		return
	}

	members := a.Value.Group()
	if len(members) == 0 {
		return
	}
	target := m
	if a.Key != "" {
		sub, ok := m[a.Key].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			m[a.Key] = sub
		}
		target = sub
	}
	for _, member := range members {
		addAttr(target, member)
	}
}

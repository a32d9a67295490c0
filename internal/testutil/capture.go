package testutil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/settle/internal/logging"
)

// Entry is one captured log record with its attributes flattened.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Kind returns the entry's kind attribute, or "".
func (e Entry) Kind() string {
	s, _ := e.Attrs[logging.KindKey].(string)
	return s
}

// Component returns the entry's component attribute, or "".
func (e Entry) Component() string {
	s, _ := e.Attrs[logging.ComponentKey].(string)
	return s
}

// Capture is a slog.Handler that keeps every record in memory.
//
// Thread-safety: all methods are safe for concurrent use; handlers derived
// with WithAttrs/WithGroup share the same entry list.
type Capture struct {
	mu      *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
	prefix  string
}

// NewCapture creates an empty capture handler.
func NewCapture() *Capture {
	return &Capture{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

// Logger returns a logger writing to c.
func (c *Capture) Logger() *slog.Logger {
	return slog.New(c)
}

// Enabled implements slog.Handler. Every level is captured.
func (c *Capture) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
func (c *Capture) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}
	for _, a := range c.attrs {
		e.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		e.Attrs[c.prefix+a.Key] = a.Value.Any()
		return true
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.entries = append(*c.entries, e)
	return nil
}

// WithAttrs implements slog.Handler.
func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *c
	clone.attrs = append([]slog.Attr(nil), c.attrs...)
	for _, a := range attrs {
		a.Key = c.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup implements slog.Handler. Grouped keys are flattened as "group.key".
func (c *Capture) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}
	clone := *c
	clone.prefix = c.prefix + name + "."
	return &clone
}

// Entries returns a copy of everything captured so far.
func (c *Capture) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(*c.entries))
	copy(out, *c.entries)
	return out
}

// Kind returns the captured entries with the given kind attribute.
func (c *Capture) Kind(kind string) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

// AtLeast returns the captured entries at or above level.
func (c *Capture) AtLeast(level slog.Level) []Entry {
	var out []Entry
	for _, e := range c.Entries() {
		if e.Level >= level {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all captured entries.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.entries = nil
}

package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Record is a severity event seen by a Monitor.
type Record struct {
	Time    int64
	Level   slog.Level
	Source  string
	Kind    string
	Message string
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// Kill is the level at or above which OnKill is called.
	Kill slog.Level
	// Fail is the level at or above which the run is marked failed.
	Fail slog.Level
	// Print is the level at or above which records reach Sink.
	Print slog.Level
	// Sink receives printed records. Nil disables printing.
	Sink slog.Handler
	// Now stamps records with the simulated time.
	Now func() int64
	// OnKill is called for every kill-level record.
	OnKill func(Record)
	// Observe is called for every record at or above min(Fail, Print),
	// whether or not a Sink is attached.
	Observe func(Record)
}

type monitorState struct {
	mu       sync.Mutex
	opts     MonitorOptions
	failures int
	kills    int
	closed   bool
}

// Monitor is a slog.Handler that watches record severities.
//
// Pass/fail marking depends only on Fail and Kill; Print only controls what
// reaches the sink. Enabled admits every level at or above min(Fail, Print),
// so a high print threshold never hides a failure.
type Monitor struct {
	st      *monitorState
	next    slog.Handler
	source  string
	grouped bool
}

// NewMonitor creates a Monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	m := &Monitor{st: &monitorState{opts: opts}}
	m.next = opts.Sink
	return m
}

// Enabled implements slog.Handler.
func (m *Monitor) Enabled(_ context.Context, level slog.Level) bool {
	floor := m.st.opts.Fail
	watched := m.next != nil || m.st.opts.Observe != nil
	if watched && m.st.opts.Print < floor {
		floor = m.st.opts.Print
	}
	return level >= floor
}

// Handle implements slog.Handler.
func (m *Monitor) Handle(ctx context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Message: r.Message, Source: m.source}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case KindKey:
			rec.Kind = a.Value.String()
		case ComponentKey:
			rec.Source = a.Value.String()
		}
		return true
	})

	st := m.st
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	if st.opts.Now != nil {
		rec.Time = st.opts.Now()
	}
	fail := r.Level >= st.opts.Fail
	kill := r.Level >= st.opts.Kill
	if fail {
		st.failures++
	}
	if kill {
		st.kills++
	}
	printed := m.next != nil && r.Level >= st.opts.Print
	observe, onKill := st.opts.Observe, st.opts.OnKill
	st.mu.Unlock()

	if observe != nil {
		observe(rec)
	}
	if kill && onKill != nil {
		onKill(rec)
	}
	if printed {
		out := r.Clone()
		out.AddAttrs(slog.Int64(SimTimeKey, rec.Time))
		return m.next.Handle(ctx, out)
	}
	return nil
}

// WithAttrs implements slog.Handler. A top-level component attribute becomes
// the record source.
func (m *Monitor) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *m
	if !m.grouped {
		for _, a := range attrs {
			if a.Key == ComponentKey {
				clone.source = a.Value.String()
			}
		}
	}
	if m.next != nil {
		clone.next = m.next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (m *Monitor) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	clone := *m
	clone.grouped = true
	if m.next != nil {
		clone.next = m.next.WithGroup(name)
	}
	return &clone
}

// Failed reports whether any record reached the fail threshold.
func (m *Monitor) Failed() bool {
	return m.Failures() > 0
}

// Failures returns the number of records at or above the fail threshold.
func (m *Monitor) Failures() int {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return m.st.failures
}

// Kills returns the number of records at or above the kill threshold.
func (m *Monitor) Kills() int {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return m.st.kills
}

// Close unsubscribes the monitor: later records are dropped without being
// counted, observed, or printed.
func (m *Monitor) Close() {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	m.st.closed = true
}

// NewSink returns the text handler used for user-facing output. Wall-clock
// time is omitted because sim_time is what orders a run.
func NewSink(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: LevelTrace,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return ReplaceLevel(groups, a)
		},
	})
}

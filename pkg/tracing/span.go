// Package tracing times the phases of a request as a tree of spans carried
// in the context. A finished root is written as slog records, one per span.
package tracing

import (
	"context"
	"crypto/rand"
	"log/slog"
	randv2 "math/rand/v2"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	name    string
	traceID string
	start   time.Time
	now     func() time.Time

	mu       sync.Mutex
	end      time.Time
	attrs    []slog.Attr
	children []*Span
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.end.IsZero()
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// End is idempotent; the first call wins.
func (s *Span) End() {
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = s.now()
	}
	s.mu.Unlock()
}

// SetAttr replaces an existing attribute with the same key.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

func newSpan(name, traceID string, now func() time.Time) *Span {
	return &Span{name: name, traceID: traceID, start: now(), now: now}
}

// Tracer opens root spans and decides which finished trees get logged.
type Tracer struct {
	enabled    bool
	sampleRate float64
	now        func() time.Time
	logger     *slog.Logger
}

// NewTracer returns a Tracer. A disabled tracer still builds spans so
// callers need no branches.
func NewTracer(enabled bool, sampleRate float64) *Tracer {
	return &Tracer{
		enabled:    enabled,
		sampleRate: sampleRate,
		now:        time.Now,
		logger:     slog.Default().With("component", "tracing"),
	}
}

// Start opens a root span. An empty traceID gets a random one.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = rand.Text()
	}
	now := time.Now
	if t != nil && t.now != nil {
		now = t.now
	}
	span := newSpan(name, traceID, now)
	return context.WithValue(ctx, spanKey{}, span), span
}

// Finish ends the root and logs the tree when enabled and sampled.
func (t *Tracer) Finish(root *Span) {
	root.End()
	if t == nil || !t.enabled {
		return
	}
	if t.sampleRate < 1 && randv2.Float64() >= t.sampleRate {
		return
	}
	t.emit(root, "", 0)
}

func (t *Tracer) emit(s *Span, parent string, depth int) {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+5)
	attrs = append(attrs,
		slog.String("trace_id", s.traceID),
		slog.String("span", s.name),
		slog.Int("depth", depth),
		slog.Float64("duration_ms", float64(s.end.Sub(s.start).Microseconds())/1000),
	)
	if parent != "" {
		attrs = append(attrs, slog.String("parent", parent))
	}
	attrs = append(attrs, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	t.logger.LogAttrs(context.Background(), slog.LevelInfo, "span", attrs...)
	for _, c := range children {
		c.End()
		t.emit(c, s.name, depth+1)
	}
}

// StartChildSpan hangs a new span under the one in ctx. Without a parent
// the span is detached and has no trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		child := newSpan(name, "", time.Now)
		return context.WithValue(ctx, spanKey{}, child), child
	}
	child := newSpan(name, parent.traceID, parent.now)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

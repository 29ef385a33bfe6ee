// Package trace tags work with W3C-style trace and span IDs. Each capture
// session gets its own trace; every log line and inference call made for
// that session carries the IDs.
package trace

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Metadata keys for gRPC/HTTP propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

// IDs identifies one span within a trace.
type IDs struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

type ctxKey struct{}

// newIDs returns a span under parent, or the root of a fresh trace when
// parent carries no trace.
func newIDs(parent IDs) IDs {
	span := uuid.New()
	ids := IDs{SpanID: hex.EncodeToString(span[:8])}
	if parent.TraceID == "" {
		id := uuid.New()
		ids.TraceID = hex.EncodeToString(id[:])
		return ids
	}
	ids.TraceID = parent.TraceID
	ids.ParentSpanID = parent.SpanID
	return ids
}

// FromContext returns the IDs stored in ctx.
func FromContext(ctx context.Context) (IDs, bool) {
	ids, ok := ctx.Value(ctxKey{}).(IDs)
	return ids, ok
}

// WithContext stores ids in ctx.
func WithContext(ctx context.Context, ids IDs) context.Context {
	return context.WithValue(ctx, ctxKey{}, ids)
}

func ensure(ctx context.Context) (context.Context, IDs) {
	if ids, ok := FromContext(ctx); ok {
		return ctx, ids
	}
	ids := newIDs(IDs{})
	return WithContext(ctx, ids), ids
}

// Span is a timed operation, logged at debug level when it ends.
type Span struct {
	name  string
	ids   IDs
	start time.Time
	attrs []slog.Attr
}

// StartSpan begins a span under the one in ctx, or a new trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	ids := newIDs(parent)
	return WithContext(ctx, ids), &Span{name: name, ids: ids, start: time.Now()}
}

// IDs returns the span's identifiers.
func (s *Span) IDs() IDs { return s.ids }

// SetAttr attaches an attribute to the span's log line.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, slog.Any(key, val))
}

// End logs the span and returns how long it ran.
func (s *Span) End() time.Duration {
	d := time.Since(s.start)
	attrs := append([]slog.Attr{slog.String("span", s.name), slog.Duration("duration", d)}, s.attrs...)
	Logger(WithContext(context.Background(), s.ids)).LogAttrs(context.Background(), slog.LevelDebug, "span finished", attrs...)
	return d
}

// Logger returns the default logger tagged with the trace IDs in ctx.
func Logger(ctx context.Context) *slog.Logger {
	ids, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := []any{"trace_id", ids.TraceID, "span_id", ids.SpanID}
	if ids.ParentSpanID != "" {
		args = append(args, "parent_span_id", ids.ParentSpanID)
	}
	return slog.Default().With(args...)
}

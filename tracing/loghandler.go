package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type commitKey struct{}

type commitInfo struct {
	sink     string
	position string
}

// LogHandler wraps a slog.Handler. Records logged with a span in their
// context get trace_id and span_id; records logged inside StartCommit also
// get a commit group naming the sink and the binlog position being
// committed, so a sink's retry warnings can be tied to a checkpoint.
type LogHandler struct {
	next slog.Handler
}

func NewLogHandler(next slog.Handler) *LogHandler {
	return &LogHandler{next: next}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		// Handlers may share r; add to a copy.
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if c, ok := ctx.Value(commitKey{}).(commitInfo); ok {
		attrs = append(attrs, slog.Group("commit",
			slog.String("sink", c.sink),
			slog.String("position", c.position),
		))
	}
	return attrs
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{next: h.next.WithAttrs(attrs)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{next: h.next.WithGroup(name)}
}

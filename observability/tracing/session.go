package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionTracer creates spans around session archive operations. Backend
// calls made inside the operation become child spans.
type SessionTracer struct {
	tracer trace.Tracer
}

// NewSessionTracer creates a SessionTracer. If tracer is nil, the global
// tracer provider is used.
func NewSessionTracer(tracer trace.Tracer) *SessionTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("sessionarchive")
	}
	return &SessionTracer{tracer: tracer}
}

// Start begins a span for one operation on one session.
func (s *SessionTracer) Start(ctx context.Context, operation, sessionID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "session."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.operation", operation),
			attribute.String("session.id", sessionID),
		),
	)
}

// End finishes span, recording err when non-nil.
func (s *SessionTracer) End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/logger"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
)

// Span represents a tracing span with batched attribute collection
type Span struct {
	span       trace.Span
	name       string
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan starts a new span on the global tracer
func StartSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		name:      operationName,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched for performance)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End ends the span and records its duration
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	duration := time.Since(s.startTime)
	metrics.ProcessingLatency.WithLabelValues(s.name).Observe(float64(duration.Nanoseconds()))

	s.span.End()
}

// SessionTracer scopes spans to one capture session
type SessionTracer struct {
	port      string
	sessionID string
}

// NewSessionTracer creates a tracer for a capture session
func NewSessionTracer(port, sessionID string) *SessionTracer {
	return &SessionTracer{
		port:      port,
		sessionID: sessionID,
	}
}

// StartSpan starts a session-scoped span
func (st *SessionTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := StartSpan(ctx, fmt.Sprintf("session.%s", operation))

	span.SetAttribute("serial.port", st.port)
	span.SetAttribute("session.id", st.sessionID)
	span.SetAttribute("session.operation", operation)

	return ctx, span
}

// TraceStage runs fn under a session span and records its outcome
func (st *SessionTracer) TraceStage(ctx context.Context, operation string, fn func() error) error {
	_, span := st.StartSpan(ctx, operation)
	defer span.End()

	err := fn()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		span.SetAttribute("error.message", err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// LoggerWithTrace returns the global logger annotated with the span
// identifiers from ctx, when a valid span is present.
func LoggerWithTrace(ctx context.Context) *zap.Logger {
	l := logger.Get()

	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	return l
}

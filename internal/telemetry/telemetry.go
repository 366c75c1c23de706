// Package telemetry is the gateway's structured logging, metrics, and
// tracing seam (spec §A.1, §A.4). The interfaces are intentionally
// small so handler/router/translator code stays agnostic of the
// concrete backend and tests can supply no-op stubs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging on the request hot path. Call
// sites pass request context (such as the endpoint) as keyvals rather
// than interpolating it into msg.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer and gauge helpers. The handler records
// a request counter and a request-duration timer through it; no
// token-usage or TTFT/TPOT metrics are recorded.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation for the per-request trace: the handler
// starts one handler.serve_completion span per request and no child
// spans.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

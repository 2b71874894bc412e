package otel

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// TraceContextFrom returns trace_id and span_id from the span in ctx, if any.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogTraceFields returns a zerolog Func hook that correlates a log line with
// its request: request_id from chi's RequestID middleware, plus trace_id and
// span_id when a valid span exists in ctx. Absent values are omitted so logs
// stay clean when OTel is disabled.
//
//	log.Info().Str("tenant_id", id).Func(otel.LogTraceFields(ctx)).Msg("...")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			e.Str("request_id", reqID)
		}
		traceID, spanID := TraceContextFrom(ctx)
		if traceID != "" {
			e.Str("trace_id", traceID)
			e.Str("span_id", spanID)
		}
	}
}

package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContextStrings extracts the W3C traceparent/tracestate pair for
// persisting alongside an outbox row, so the publisher can resume the trace
// when the event is finally shipped.
func TraceContextStrings(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c.Get("traceparent"), c.Get("tracestate")
}

// ContextWithTraceContext rebuilds a context from persisted trace strings.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" && tracestate == "" {
		return ctx
	}
	c := propagation.MapCarrier{}
	if traceparent != "" {
		c.Set("traceparent", traceparent)
	}
	if tracestate != "" {
		c.Set("tracestate", tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}

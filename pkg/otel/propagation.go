package otel

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Environment variables a host runtime may set to make the task a child of
// its own trace.
const (
	EnvTraceparent = "TRACEPARENT"
	EnvTracestate  = "TRACESTATE"
)

// ExtractTraceContextFromEnv extracts W3C trace context from the TRACEPARENT
// and TRACESTATE environment variables.
func ExtractTraceContextFromEnv(ctx context.Context) context.Context {
	return ExtractTraceContext(ctx, os.Getenv(EnvTraceparent), os.Getenv(EnvTracestate))
}

// ExtractTraceContext extracts a remote parent from traceparent/tracestate
// values. With an empty traceparent the context is returned unchanged and
// new spans are roots.
func ExtractTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate != "" {
		carrier["tracestate"] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

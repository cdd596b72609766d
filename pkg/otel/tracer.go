// Package otel provides OpenTelemetry tracing utilities for task invocations.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracing configuration constants
const (
	// EnvTraceSampleRatio is the environment variable for trace sampling ratio
	EnvTraceSampleRatio = "TRACE_SAMPLE_RATIO"

	// DefaultTraceSampleRatio samples every task. A task is a single short
	// invocation, so there is no volume to shed.
	DefaultTraceSampleRatio = 1.0

	// TracerName is the instrumentation scope of spans emitted by this module
	TracerName = "github.com/cisco-en-programmability/dnacenter-ansible-sub018"
)

// GetTraceSampleRatio reads the trace sample ratio from TRACE_SAMPLE_RATIO env var.
// Returns DefaultTraceSampleRatio if not set or invalid. Valid range is 0.0 to 1.0.
func GetTraceSampleRatio(ctx context.Context, log logger.Logger) float64 {
	ratioStr := os.Getenv(EnvTraceSampleRatio)
	if ratioStr == "" {
		return DefaultTraceSampleRatio
	}

	ratio, err := strconv.ParseFloat(ratioStr, 64)
	if err != nil {
		log.Warnf(ctx, "Invalid %s value %q, using default %.2f: %v", EnvTraceSampleRatio, ratioStr, DefaultTraceSampleRatio, err)
		return DefaultTraceSampleRatio
	}

	if ratio < 0.0 || ratio > 1.0 {
		log.Warnf(ctx, "Invalid %s value %.4f (must be 0.0-1.0), using default %.2f", EnvTraceSampleRatio, ratio, DefaultTraceSampleRatio)
		return DefaultTraceSampleRatio
	}

	log.Debugf(ctx, "Trace sample ratio configured: %.4f", ratio)
	return ratio
}

// InitTracer initializes the OpenTelemetry TracerProvider that generates the
// trace_id and span_id attached to task logs and propagated on controller
// requests via W3C Trace Context headers.
//
// The sampler is ParentBased(TraceIDRatioBased(sampleRatio)) so a parent
// supplied through TRACEPARENT keeps its sampling decision.
func InitTracer(serviceName, serviceVersion string, sampleRatio float64) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// StartSpan starts a span on the module tracer and attaches its ids to the
// context log fields.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return logger.WithOTelTraceContext(ctx), span
}

package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// Context keys for storing values in context.Context
const (
	LogFieldsKey contextKey = "log_fields"
)

// Log field name constants - use these directly in WithLogFields maps
const (
	ComponentKey = "component"
	VersionKey   = "version"
	HostnameKey  = "hostname"

	ErrorKey      = "error"
	ErrorKindKey  = "error_kind"
	StackTraceKey = "stack_trace"

	TraceIDKey   = "trace_id"
	SpanIDKey    = "span_id"
	RequestIDKey = "request_id"

	// Task fields
	TaskKey      = "task"
	StateKey     = "state"
	CheckModeKey = "check_mode"

	// Resource fields
	FamilyKey       = "family"
	ResourceTypeKey = "resource_type"
	ResourceNameKey = "resource_name"
	ResourceIDKey   = "resource_id"
	ActionKey       = "action"

	// Controller call fields
	HTTPMethodKey  = "http_method"
	HTTPURLKey     = "http_url"
	HTTPStatusKey  = "http_status"
	ElapsedKey     = "elapsed"
	ExecutionIDKey = "execution_id"
)

// LogFields holds dynamic key-value pairs for logging
type LogFields map[string]interface{}

// -----------------------------------------------------------------------------
// Context Setters
// -----------------------------------------------------------------------------

// WithLogField adds a single dynamic log field to the context
func WithLogField(ctx context.Context, key string, value interface{}) context.Context {
	fields := GetLogFields(ctx)
	if fields == nil {
		fields = make(LogFields)
	}
	fields[key] = value
	return context.WithValue(ctx, LogFieldsKey, fields)
}

// WithLogFields adds multiple dynamic log fields to the context
func WithLogFields(ctx context.Context, newFields LogFields) context.Context {
	fields := GetLogFields(ctx)
	if fields == nil {
		fields = make(LogFields)
	}
	for k, v := range newFields {
		fields[k] = v
	}
	return context.WithValue(ctx, LogFieldsKey, fields)
}

// WithTask returns a context tagged with the task name and state selector
func WithTask(ctx context.Context, task, state string, checkMode bool) context.Context {
	return WithLogFields(ctx, LogFields{
		TaskKey:      task,
		StateKey:     state,
		CheckModeKey: checkMode,
	})
}

// WithResource returns a context tagged with the descriptor family and name
func WithResource(ctx context.Context, family, resourceType string) context.Context {
	return WithLogFields(ctx, LogFields{
		FamilyKey:       family,
		ResourceTypeKey: resourceType,
	})
}

// WithResourceName returns a context with the resource's display identity set
func WithResourceName(ctx context.Context, name string) context.Context {
	return WithLogField(ctx, ResourceNameKey, name)
}

// WithResourceID returns a context with the controller-assigned id set
func WithResourceID(ctx context.Context, id string) context.Context {
	return WithLogField(ctx, ResourceIDKey, id)
}

// WithAction returns a context with the reconcile action set (create, update, ...)
func WithAction(ctx context.Context, action string) context.Context {
	return WithLogField(ctx, ActionKey, action)
}

// WithRequestID returns a context with the request id set
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return WithLogField(ctx, RequestIDKey, requestID)
}

// WithExecutionID returns a context with the tracked execution handle set
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return WithLogField(ctx, ExecutionIDKey, executionID)
}

// WithTraceID returns a context with the trace ID set
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return WithLogField(ctx, TraceIDKey, traceID)
}

// WithSpanID returns a context with the span ID set
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return WithLogField(ctx, SpanIDKey, spanID)
}

// WithErrorField returns a context with the error message set.
// Stack traces are captured only for unexpected/internal errors. Expected
// operational errors (validation, HTTP status, network, timeouts) skip
// stack trace capture. If err is nil, returns the context unchanged.
func WithErrorField(ctx context.Context, err error) context.Context {
	if err == nil {
		return ctx
	}
	ctx = WithLogField(ctx, ErrorKey, err.Error())

	if shouldCaptureStackTrace(err) {
		ctx = WithStackTraceField(ctx, CaptureStackTrace(1))
	}

	return ctx
}

// WithOTelTraceContext extracts OpenTelemetry trace context (trace_id, span_id)
// from the context and adds them as log fields for correlation.
// If no active span exists, returns the context unchanged.
func WithOTelTraceContext(ctx context.Context) context.Context {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ctx
	}

	if spanCtx.HasTraceID() {
		ctx = WithLogField(ctx, TraceIDKey, spanCtx.TraceID().String())
	}
	if spanCtx.HasSpanID() {
		ctx = WithLogField(ctx, SpanIDKey, spanCtx.SpanID().String())
	}

	return ctx
}

// -----------------------------------------------------------------------------
// Context Getters
// -----------------------------------------------------------------------------

// GetLogFields returns the dynamic log fields from the context, or nil if not set
func GetLogFields(ctx context.Context) LogFields {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(LogFieldsKey).(LogFields); ok {
		// Return a copy to avoid mutation
		fields := make(LogFields, len(v))
		for k, val := range v {
			fields[k] = val
		}
		return fields
	}
	return nil
}

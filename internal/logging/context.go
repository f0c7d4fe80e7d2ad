package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context key types
type scopeCtxKey struct{}
type requestCtxKey struct{}

// ContextWithScope attaches the tenancy scope handling this request.
func ContextWithScope(ctx context.Context, scopeID string) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, scopeID)
}

// ScopeFromContext returns the scope id, or "" if none is set.
func ScopeFromContext(ctx context.Context) string {
	scope, _ := ctx.Value(scopeCtxKey{}).(string)
	return scope
}

// ContextWithRequestID attaches an HTTP request id for correlation.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if scope := ScopeFromContext(ctx); scope != "" {
		fields = append(fields, zap.String("scope_id", scope))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

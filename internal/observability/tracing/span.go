// Package tracing provides OpenTelemetry tracing for the secret-replication daemon.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTracerName is the default tracer name.
	DefaultTracerName = "vaultsync"
)

// SpanOption is a function that configures a span.
type SpanOption func(*spanOptions)

type spanOptions struct {
	kind       trace.SpanKind
	attributes []attribute.KeyValue
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(o *spanOptions) {
		o.kind = kind
	}
}

// WithAttributes sets span attributes.
func WithAttributes(attrs ...attribute.KeyValue) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, attrs...)
	}
}

// StartSpan starts a new span with the given name.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	options := &spanOptions{
		kind: trace.SpanKindInternal,
	}
	for _, opt := range opts {
		opt(options)
	}

	tracer := otel.GetTracerProvider().Tracer(DefaultTracerName)

	spanOpts := []trace.SpanStartOption{
		trace.WithSpanKind(options.kind),
	}
	if len(options.attributes) > 0 {
		spanOpts = append(spanOpts, trace.WithAttributes(options.attributes...))
	}

	return tracer.Start(ctx, name, spanOpts...)
}

// StartClientSpan starts a new span for an outbound call to a Vault backend.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindClient), WithAttributes(attrs...))
}

// StartInternalSpan starts a new span for in-process work such as sync-task processing.
func StartInternalSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, WithSpanKind(trace.SpanKindInternal), WithAttributes(attrs...))
}

// SetSpanOK sets the span status to OK.
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetSpanError sets the span status to Error and records err on the span.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

// BackendAttr creates an attribute identifying the Vault backend a span's call targets.
func BackendAttr(backend string) attribute.KeyValue {
	return attribute.String("backend", backend)
}

// RouteAttr creates an attribute identifying the logical secret path a span's call touches.
func RouteAttr(route string) attribute.KeyValue {
	return attribute.String("route", route)
}

// TraceIDFromContext returns the trace ID of the span active on ctx. With no
// span on ctx it returns the all-zero (invalid) trace ID string.
func TraceIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// SpanIDFromContext returns the span ID of the span active on ctx. With no
// span on ctx it returns the all-zero (invalid) span ID string.
func SpanIDFromContext(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}

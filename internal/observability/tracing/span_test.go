// Package tracing provides OpenTelemetry tracing for the secret-replication daemon.
package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer sets up a test tracer provider with an in-memory exporter.
func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Save original provider
	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalProvider)
	}

	return exporter, cleanup
}

// TestWithSpanKind tests setting span kind.
func TestWithSpanKind(t *testing.T) {
	tests := []struct {
		name     string
		kind     trace.SpanKind
		expected trace.SpanKind
	}{
		{
			name:     "server kind",
			kind:     trace.SpanKindServer,
			expected: trace.SpanKindServer,
		},
		{
			name:     "client kind",
			kind:     trace.SpanKindClient,
			expected: trace.SpanKindClient,
		},
		{
			name:     "internal kind",
			kind:     trace.SpanKindInternal,
			expected: trace.SpanKindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &spanOptions{}
			opt := WithSpanKind(tt.kind)
			opt(opts)
			assert.Equal(t, tt.expected, opts.kind)
		})
	}
}

// TestWithAttributes tests setting attributes.
func TestWithAttributes(t *testing.T) {
	tests := []struct {
		name     string
		attrs    []attribute.KeyValue
		expected int
	}{
		{
			name:     "single attribute",
			attrs:    []attribute.KeyValue{attribute.String("key", "value")},
			expected: 1,
		},
		{
			name: "multiple attributes",
			attrs: []attribute.KeyValue{
				attribute.String("key1", "value1"),
				attribute.Int("key2", 42),
				attribute.Bool("key3", true),
			},
			expected: 3,
		},
		{
			name:     "no attributes",
			attrs:    []attribute.KeyValue{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &spanOptions{}
			opt := WithAttributes(tt.attrs...)
			opt(opts)
			assert.Len(t, opts.attributes, tt.expected)
		})
	}
}

// TestWithAttributes_Append tests that attributes are appended.
func TestWithAttributes_Append(t *testing.T) {
	opts := &spanOptions{}

	// Apply first set of attributes
	opt1 := WithAttributes(attribute.String("key1", "value1"))
	opt1(opts)
	assert.Len(t, opts.attributes, 1)

	// Apply second set of attributes
	opt2 := WithAttributes(attribute.String("key2", "value2"))
	opt2(opts)
	assert.Len(t, opts.attributes, 2)
}

// TestStartSpan tests starting span with options.
func TestStartSpan(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	defer cleanup()

	tests := []struct {
		name     string
		spanName string
		opts     []SpanOption
		validate func(t *testing.T, spans tracetest.SpanStubs)
	}{
		{
			name:     "basic span",
			spanName: "test-span",
			opts:     nil,
			validate: func(t *testing.T, spans tracetest.SpanStubs) {
				require.Len(t, spans, 1)
				assert.Equal(t, "test-span", spans[0].Name)
				assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind)
			},
		},
		{
			name:     "span with server kind",
			spanName: "server-span",
			opts:     []SpanOption{WithSpanKind(trace.SpanKindServer)},
			validate: func(t *testing.T, spans tracetest.SpanStubs) {
				require.Len(t, spans, 1)
				assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
			},
		},
		{
			name:     "span with attributes",
			spanName: "attr-span",
			opts: []SpanOption{
				WithAttributes(
					attribute.String("key", "value"),
					attribute.Int("count", 42),
				),
			},
			validate: func(t *testing.T, spans tracetest.SpanStubs) {
				require.Len(t, spans, 1)
				attrs := spans[0].Attributes
				assert.GreaterOrEqual(t, len(attrs), 2)
			},
		},
		{
			name:     "span with multiple options",
			spanName: "multi-opt-span",
			opts: []SpanOption{
				WithSpanKind(trace.SpanKindClient),
				WithAttributes(attribute.String("service", "test")),
			},
			validate: func(t *testing.T, spans tracetest.SpanStubs) {
				require.Len(t, spans, 1)
				assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			ctx, span := StartSpan(context.Background(), tt.spanName, tt.opts...)
			assert.NotNil(t, ctx)
			assert.NotNil(t, span)
			span.End()

			spans := exporter.GetSpans()
			tt.validate(t, spans)
		})
	}
}

// TestStartClientSpan tests starting a span for an outbound Vault call.
func TestStartClientSpan(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	defer cleanup()

	tests := []struct {
		name     string
		spanName string
		attrs    []attribute.KeyValue
	}{
		{
			name:     "basic client span",
			spanName: "vault.read",
			attrs:    nil,
		},
		{
			name:     "client span with attributes",
			spanName: "vault.write",
			attrs: []attribute.KeyValue{
				BackendAttr("secret"),
				RouteAttr("app/config"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			ctx, span := StartClientSpan(context.Background(), tt.spanName, tt.attrs...)
			assert.NotNil(t, ctx)
			assert.NotNil(t, span)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
		})
	}
}

// TestStartInternalSpan tests starting a span for in-process work such as sync-task processing.
func TestStartInternalSpan(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	defer cleanup()

	ctx, span := StartInternalSpan(context.Background(), "syncer.process_task", attribute.String("key", "value"))
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind)
}

// TestSetSpanOK tests setting OK status.
func TestSetSpanOK(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	defer cleanup()

	_, span := StartSpan(context.Background(), "test-span")
	SetSpanOK(span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

// TestSetSpanError tests setting error status.
func TestSetSpanError(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	defer cleanup()

	tests := []struct {
		name        string
		err         error
		expectError bool
	}{
		{
			name:        "with error",
			err:         errors.New("test error"),
			expectError: true,
		},
		{
			name:        "with nil error",
			err:         nil,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := StartSpan(context.Background(), "test-span")
			SetSpanError(span, tt.err)
			span.End()

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			if tt.expectError {
				assert.Equal(t, codes.Error, spans[0].Status.Code)
				assert.NotEmpty(t, spans[0].Events)
			}
		})
	}
}

// TestBackendAttr tests backend attribute.
func TestBackendAttr(t *testing.T) {
	attr := BackendAttr("secret")
	assert.Equal(t, attribute.Key("backend"), attr.Key)
	assert.Equal(t, "secret", attr.Value.AsString())
}

// TestRouteAttr tests route attribute.
func TestRouteAttr(t *testing.T) {
	attr := RouteAttr("app/config")
	assert.Equal(t, attribute.Key("route"), attr.Key)
	assert.Equal(t, "app/config", attr.Value.AsString())
}

// TestTraceIDFromContext tests getting trace ID.
func TestTraceIDFromContext(t *testing.T) {
	_, cleanup := setupTestTracer(t)
	defer cleanup()

	tests := []struct {
		name     string
		setupCtx func() context.Context
		wantLen  int
	}{
		{
			name: "context with span",
			setupCtx: func() context.Context {
				ctx, span := StartSpan(context.Background(), "test-span")
				defer span.End()
				return ctx
			},
			wantLen: 32, // Trace ID is 32 hex characters
		},
		{
			name: "context without span",
			setupCtx: func() context.Context {
				return context.Background()
			},
			wantLen: 32, // Returns invalid trace ID string
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupCtx()
			traceID := TraceIDFromContext(ctx)
			assert.Len(t, traceID, tt.wantLen)
		})
	}
}

// TestSpanIDFromContext tests getting span ID.
func TestSpanIDFromContext(t *testing.T) {
	_, cleanup := setupTestTracer(t)
	defer cleanup()

	tests := []struct {
		name     string
		setupCtx func() context.Context
		wantLen  int
	}{
		{
			name: "context with span",
			setupCtx: func() context.Context {
				ctx, span := StartSpan(context.Background(), "test-span")
				defer span.End()
				return ctx
			},
			wantLen: 16, // Span ID is 16 hex characters
		},
		{
			name: "context without span",
			setupCtx: func() context.Context {
				return context.Background()
			},
			wantLen: 16, // Returns invalid span ID string
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupCtx()
			spanID := SpanIDFromContext(ctx)
			assert.Len(t, spanID, tt.wantLen)
		})
	}
}

func TestDefaultTracerName(t *testing.T) {
	assert.Equal(t, "vaultsync", DefaultTracerName)
}

// TestTraceIDFromContext_NilSpan tests TraceIDFromContext with nil span.
func TestTraceIDFromContext_NilSpan(t *testing.T) {
	// Context without any span
	ctx := context.Background()
	traceID := TraceIDFromContext(ctx)
	// Returns invalid trace ID string (all zeros)
	assert.Len(t, traceID, 32)
}

// TestSpanIDFromContext_NilSpan tests SpanIDFromContext with nil span.
func TestSpanIDFromContext_NilSpan(t *testing.T) {
	// Context without any span
	ctx := context.Background()
	spanID := SpanIDFromContext(ctx)
	// Returns invalid span ID string (all zeros)
	assert.Len(t, spanID, 16)
}

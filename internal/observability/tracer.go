// Package observability provides OpenTelemetry tracing for the Bindu
// runtime. The worker pool starts one span per task execution
// (StartTaskSpan); StartRPCSpan covers one JSON-RPC dispatch but has no
// caller in this module, and the task span is not linked to the RPC that
// enqueued the task.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracer wires an OTLP/gRPC exporter and installs it as the global
// tracer provider. Callers are responsible for calling Shutdown on the
// returned provider before the process exits.
func InitTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("0.1.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(0.1),
		)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the global tracer used for Bindu spans.
func Tracer() trace.Tracer {
	return otel.Tracer("bindu")
}

// TaskAttributes describes the task a span covers.
func TaskAttributes(taskID, contextID, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("bindu.task.id", taskID),
		attribute.String("bindu.context.id", contextID),
		attribute.String("bindu.task.state", state),
	}
}

// RPCAttributes describes a JSON-RPC method invocation.
func RPCAttributes(method string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("bindu.rpc.method", method),
	}
}

// StartTaskSpan starts a span covering one worker invocation of a task.
func StartTaskSpan(ctx context.Context, taskID, contextID, state string) (context.Context, trace.Span) {
	attrs := TaskAttributes(taskID, contextID, state)
	return Tracer().Start(ctx, "worker.invoke",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartRPCSpan starts a span covering one JSON-RPC method dispatch.
func StartRPCSpan(ctx context.Context, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "rpc."+method,
		trace.WithAttributes(RPCAttributes(method)...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// RecordOutcome annotates a span with the terminal outcome of the work it covers.
func RecordOutcome(span trace.Span, outcome string, err error) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String("bindu.outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
}

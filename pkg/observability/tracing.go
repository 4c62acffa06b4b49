package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer from the global provider. Safe to call
// before InitOTel; spans are no-ops until a provider is installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartStoreSpan opens a span for a storage operation with conventional
// attributes. Callers must end the span via EndSpan.
func StartStoreSpan(ctx context.Context, tracer trace.Tracer, backend, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String("store.backend", backend),
		attribute.String("store.op", op),
	}, attrs...)
	return tracer.Start(ctx, backend+"."+op, trace.WithAttributes(all...))
}

// EndSpan records the outcome on the span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

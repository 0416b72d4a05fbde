// Package tracing wraps the global OpenTelemetry tracer. With no SDK
// installed the spans are no-ops.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "genxsop-forecast"

// Start opens a span named name with attrs
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on the span (if any) and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Product tags a span with the product id
func Product(id int64) attribute.KeyValue {
	return attribute.Int64("product.id", id)
}

// Model tags a span with a model id
func Model(key, id string) attribute.KeyValue {
	return attribute.String(key, id)
}

// Job tags a span with a job id
func Job(id string) attribute.KeyValue {
	return attribute.String("job.id", id)
}

package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName is the default name used when acquiring a tracer instance.
const tracerName = "flowgate"

// GetTracer returns a named tracer from the globally configured OpenTelemetry
// provider. If no global provider is configured it falls back to a NoOp
// tracer. Injecting the TracerProvider into components is preferred over
// relying on this global accessor.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// RecordError records an error event on the span with a stack trace and sets
// the span status to Error. Does nothing if the error is nil or the span is
// nil or not recording.
func RecordError(span oteltrace.Span, err error) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, err.Error())
}

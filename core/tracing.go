package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used when Options.Tracer is nil.
const TracerName = "github.com/Swind/go-dispatch"

// Span attribute keys.
const (
	attrQoS        = attribute.Key("dispatch.qos")
	attrQueue      = attribute.Key("dispatch.queue")
	attrTaskID     = attribute.Key("dispatch.task_id")
	attrIterations = attribute.Key("dispatch.iterations")
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// startSpan starts an internal span tagged with the QoS class and the queue
// it resolves to.
func (d *Dispatcher) startSpan(ctx context.Context, name string, qos QoS, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, attrQoS.String(qos.Label()))
	if q := d.Resolve(qos); q != nil {
		all = append(all, attrQueue.String(q.Label()))
	}
	all = append(all, attrs...)
	return d.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(all...))
}

// endSpan records the outcome and ends span. ok is false when the traced
// work panicked.
func endSpan(span trace.Span, ok bool) {
	if ok {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "task panicked")
	}
	span.End()
}

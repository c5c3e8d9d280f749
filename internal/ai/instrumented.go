package ai

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type instrumented struct {
	next     Provider
	name     string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// Instrument wraps p so every call runs inside a span and records latency and failures.
func Instrument(p Provider, name string, tracer trace.Tracer, meter metric.Meter) (Provider, error) {
	duration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"llm.request.errors",
		metric.WithDescription("Failed LLM requests"),
	)
	if err != nil {
		return nil, err
	}
	return &instrumented{next: p, name: name, tracer: tracer, duration: duration, errors: failures}, nil
}

func (i *instrumented) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := i.tracer.Start(ctx, i.name+"_api_call")
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("llm.provider", i.name))
	span.SetAttributes(
		attribute.String("llm.provider", i.name),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	start := time.Now()
	resp, err := i.next.Chat(ctx, req)
	i.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil {
		i.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp != nil {
		span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	}
	return resp, nil
}

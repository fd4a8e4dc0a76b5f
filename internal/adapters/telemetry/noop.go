package telemetry

import (
	"context"

	"go.trai.ch/dake/internal/core/ports"
)

// NoopTracer discards all spans.
type NoopTracer struct{}

// NewNoopTracer creates a NoopTracer.
func NewNoopTracer() *NoopTracer {
	return &NoopTracer{}
}

// Start implements ports.Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, ports.Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttribute(string, any) {}
func (noopSpan) RecordError(error) {}
func (noopSpan) End() {}

package ports

import "context"

// Tracer creates spans around units of build work.
type Tracer interface {
	// Start opens a span named name, nested under the span in ctx if any.
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span is one traced unit of work.
type Span interface {
	// SetAttribute attaches a key-value pair to the span.
	SetAttribute(key string, value any)
	// RecordError marks the span as failed with err.
	RecordError(err error)
	// End completes the span.
	End()
}

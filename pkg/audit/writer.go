package audit

import (
	"context"
	"time"
)

// Writer appends activity log records. Implementations must be safe for
// concurrent use and must never update or delete existing records.
type Writer interface {
	Append(ctx context.Context, record *Record) error
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// WriterKey is the context key for the audit writer
const WriterKey contextKey = "audit_writer"

// WithWriter adds an audit writer to the context
func WithWriter(ctx context.Context, w Writer) context.Context {
	return context.WithValue(ctx, WriterKey, w)
}

// FromContext retrieves the audit writer from context
func FromContext(ctx context.Context) Writer {
	if w, ok := ctx.Value(WriterKey).(Writer); ok {
		return w
	}
	// Return a no-op writer if none is set
	return NopWriter{}
}

// NopWriter discards records
type NopWriter struct{}

func (NopWriter) Append(ctx context.Context, record *Record) error { return nil }
func (NopWriter) Close() error                                     { return nil }

// stamp fills the timestamp when the caller left it empty
func stamp(record *Record) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
}

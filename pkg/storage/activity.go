package storage

import (
	"context"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
)

// ActivityWriter adapts a store's activity log to audit.Writer
type ActivityWriter struct {
	appender ActivityLogAppender
}

// NewActivityWriter returns an audit.Writer that appends through appender
func NewActivityWriter(appender ActivityLogAppender) *ActivityWriter {
	return &ActivityWriter{appender: appender}
}

// Append appends record to the store
func (w *ActivityWriter) Append(ctx context.Context, record *audit.Record) error {
	return w.appender.AppendActivityLog(ctx, record)
}

// Close is a no-op; the store owns its connections
func (w *ActivityWriter) Close() error {
	return nil
}

var _ audit.Writer = (*ActivityWriter)(nil)

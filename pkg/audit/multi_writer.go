package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiWriter appends each record to every configured writer in order
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a writer that fans out to writers
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Append writes to every writer, continuing past failures. The returned
// error joins every failure.
func (m *MultiWriter) Append(ctx context.Context, record *Record) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all writers
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
		}
	}
	return errors.Join(errs...)
}

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mu      sync.Mutex
	records []*Record
	err     error
	closed  bool
}

func (m *mockWriter) Append(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestMultiWriter_Append(t *testing.T) {
	w1 := &mockWriter{}
	w2 := &mockWriter{}

	mw := NewMultiWriter(w1, w2)
	err := mw.Append(context.Background(), &Record{UserID: "u-1", Status: StatusAllowed})
	require.NoError(t, err)

	assert.Len(t, w1.records, 1)
	assert.Len(t, w2.records, 1)
}

func TestMultiWriter_ContinuesPastFailure(t *testing.T) {
	failure := errors.New("disk full")
	w1 := &mockWriter{err: failure}
	w2 := &mockWriter{}

	mw := NewMultiWriter(w1, w2)
	err := mw.Append(context.Background(), &Record{UserID: "u-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Len(t, w2.records, 1)
}

func TestMultiWriter_Close(t *testing.T) {
	w1 := &mockWriter{}
	w2 := &mockWriter{}

	require.NoError(t, NewMultiWriter(w1, w2).Close())
	assert.True(t, w1.closed)
	assert.True(t, w2.closed)
}

func TestMultiWriter_Empty(t *testing.T) {
	assert.NoError(t, NewMultiWriter().Append(context.Background(), &Record{}))
}

func TestFromContext(t *testing.T) {
	assert.IsType(t, NopWriter{}, FromContext(context.Background()))

	w := &mockWriter{}
	ctx := WithWriter(context.Background(), w)
	assert.Same(t, w, FromContext(ctx))
}

package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"with custom timeout", 10 * time.Second, 10 * time.Second},
		{"with zero timeout uses default", 0, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), &http.Server{}, tt.timeout)
			require.NotNil(t, sm)
			assert.Equal(t, tt.expectedTimeout, sm.shutdownTimeout)
		})
	}
}

func TestShutdownManager_Shutdown(t *testing.T) {
	t.Run("runs steps last registered first", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)

		var mu sync.Mutex
		var order []string
		for _, name := range []string{"store", "activity log", "telemetry"} {
			name := name
			sm.RegisterShutdownFunc(name, func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			})
		}

		require.NoError(t, sm.Shutdown(context.Background()))
		assert.Equal(t, []string{"telemetry", "activity log", "store"}, order)
	})

	t.Run("keeps going after a failed step", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)
		boom := errors.New("close failed")

		var storeClosed bool
		sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
			storeClosed = true
			return nil
		})
		sm.RegisterShutdownFunc("activity log", func(ctx context.Context) error { return boom })

		err := sm.Shutdown(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "activity log")
		assert.Contains(t, err.Error(), "1 errors")
		assert.True(t, storeClosed)
	})

	t.Run("reports a panicking step", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)
		sm.RegisterShutdownFunc("cache", func(ctx context.Context) error { panic("double close") })

		err := sm.Shutdown(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic: double close")
	})

	t.Run("gives up when the context expires", func(t *testing.T) {
		sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)
		release := make(chan struct{})
		defer close(release)

		var reached bool
		sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
			reached = true
			return nil
		})
		sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
			<-release
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := sm.Shutdown(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, reached, "steps after the deadline are skipped")
	})

	t.Run("stops the HTTP server first", func(t *testing.T) {
		srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Start()
		defer srv.Close()

		var buf bytes.Buffer
		sm := NewShutdownManager(NewLogger("info", &buf), srv.Config, time.Second)

		require.NoError(t, sm.Shutdown(context.Background()))
		assert.Contains(t, buf.String(), "HTTP server shutdown complete")
	})
}

func TestShutdownManager_WaitForShutdownContext(t *testing.T) {
	sm := NewShutdownManager(NewLogger("info", &bytes.Buffer{}), nil, time.Second)

	closed := make(chan struct{})
	sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
		close(closed)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	select {
	case <-closed:
	default:
		t.Fatal("release step did not run")
	}
}

package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShutdownManager_HooksRunInReverseOrder(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var order []string
	sm.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	sm.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})
	sm.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d hooks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdownManager_HookErrorReported(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.Register("ok", func(ctx context.Context) error { return nil })
	sm.Register("broken", func(ctx context.Context) error { return errors.New("boom") })

	if err := sm.Shutdown(context.Background()); err == nil {
		t.Error("Shutdown should surface hook errors")
	}
}

func TestShutdownManager_TimeoutSkipsRemaining(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var ran []string
	sm.Register("skipped", func(ctx context.Context) error {
		ran = append(ran, "skipped")
		return nil
	})
	sm.Register("slow", func(ctx context.Context) error {
		ran = append(ran, "slow")
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sm.Shutdown(ctx); err == nil {
		t.Error("Shutdown should report the deadline")
	}
	// "slow" ran and consumed the deadline; "skipped" must not have run.
	if len(ran) != 1 || ran[0] != "slow" {
		t.Errorf("ran = %v, want only slow", ran)
	}
}

func TestShutdownManager_StopsHTTPServer(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	sm := NewShutdownManager(logger, srv.Config, 2*time.Second)
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := http.Get(srv.URL); err == nil {
		t.Error("server should refuse connections after shutdown")
	}
}

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", sm.shutdownTimeout)
	}
}

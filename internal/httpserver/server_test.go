package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/zoner/backend/internal/config"
)

func TestNewAppliesConfiguredTimeouts(t *testing.T) {
	srv := New(9000, config.HTTPConfig{
		ReadTimeout:     2 * time.Minute,
		WriteTimeout:    45 * time.Second,
		ShutdownTimeout: 3 * time.Second,
	}, http.NotFoundHandler())

	if srv.inner.Addr != ":9000" {
		t.Fatalf("expected addr :9000 got %q", srv.inner.Addr)
	}
	if srv.inner.ReadTimeout != 2*time.Minute {
		t.Fatalf("expected read timeout 2m got %s", srv.inner.ReadTimeout)
	}
	if srv.inner.WriteTimeout != 45*time.Second {
		t.Fatalf("expected write timeout 45s got %s", srv.inner.WriteTimeout)
	}
	if srv.ShutdownTimeout() != 3*time.Second {
		t.Fatalf("expected shutdown timeout 3s got %s", srv.ShutdownTimeout())
	}
	if srv.inner.ReadHeaderTimeout != DefaultReadHeaderTimeout || srv.inner.IdleTimeout != DefaultIdleTimeout {
		t.Fatalf("expected unset timeouts to fall back to defaults got %s and %s", srv.inner.ReadHeaderTimeout, srv.inner.IdleTimeout)
	}
}

func TestDrainIgnoresCancelledContext(t *testing.T) {
	srv := New(0, config.HTTPConfig{}, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.Drain(ctx); err != nil {
		t.Fatalf("expected idle server to drain cleanly got %v", err)
	}
	if srv.ShutdownTimeout() != DefaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout got %s", srv.ShutdownTimeout())
	}
}

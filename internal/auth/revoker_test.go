package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisRevoker(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	revoker := NewRedisRevoker(client, "test:revoked")
	ctx := context.Background()

	if err := revoker.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := revoker.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked got %v %v", revoked, err)
	}
	if !srv.Exists("test:revoked:jti-1") {
		t.Fatal("expected prefixed key in redis")
	}

	srv.FastForward(2 * time.Minute)
	revoked, err = revoker.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected revocation to expire got %v %v", revoked, err)
	}

	if err := revoker.Revoke(ctx, "jti-2", 0); err != nil {
		t.Fatalf("revoke with zero ttl: %v", err)
	}
	if srv.Exists("test:revoked:jti-2") {
		t.Fatal("expected already-expired token to be skipped")
	}
}

func TestRedisRevokerSurfacesErrors(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	revoker := NewRedisRevoker(client, "")

	srv.Close()
	if _, err := revoker.IsRevoked(context.Background(), "jti"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestMemoryRevokerExpiry(t *testing.T) {
	revoker := NewMemoryRevoker()
	now := time.Now()
	revoker.now = func() time.Time { return now }

	_ = revoker.Revoke(context.Background(), "jti", time.Minute)
	if revoked, _ := revoker.IsRevoked(context.Background(), "jti"); !revoked {
		t.Fatal("expected jti revoked")
	}

	now = now.Add(2 * time.Minute)
	if revoked, _ := revoker.IsRevoked(context.Background(), "jti"); revoked {
		t.Fatal("expected revocation to lapse")
	}
}

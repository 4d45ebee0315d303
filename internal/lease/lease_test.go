package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"roundtable/internal/config"

	"github.com/jonboulle/clockwork"
)

func exerciseLease(t *testing.T, l Lease, expire func()) {
	t.Helper()
	ctx := context.Background()
	key := "session-" + time.Now().Format("150405.000000000")

	if err := l.Acquire(ctx, key, "node-a", time.Second); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := l.Acquire(ctx, key, "node-a", time.Second); err != nil {
		t.Fatalf("reacquire a: %v", err)
	}
	if err := l.Acquire(ctx, key, "node-b", time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("acquire b err = %v, want ErrHeld", err)
	}
	if err := l.Renew(ctx, key, "node-b", time.Second); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("renew b err = %v, want ErrNotHeld", err)
	}
	if err := l.Renew(ctx, key, "node-a", time.Second); err != nil {
		t.Fatalf("renew a: %v", err)
	}
	if err := l.Release(ctx, key, "node-b"); err != nil {
		t.Fatalf("release b: %v", err)
	}
	if err := l.Acquire(ctx, key, "node-b", time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("foreign release freed the lease: %v", err)
	}
	if err := l.Release(ctx, key, "node-a"); err != nil {
		t.Fatalf("release a: %v", err)
	}
	if err := l.Acquire(ctx, key, "node-b", time.Second); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if expire != nil {
		expire()
		if err := l.Acquire(ctx, key, "node-a", time.Second); err != nil {
			t.Fatalf("acquire after expiry: %v", err)
		}
	}
}

func TestLocalLease(t *testing.T) {
	clock := clockwork.NewFakeClock()
	exerciseLease(t, NewLocal(clock), func() { clock.Advance(2 * time.Second) })
}

func TestLocalRenewAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewLocal(clock)
	ctx := context.Background()
	if err := l.Acquire(ctx, "s", "a", time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	clock.Advance(time.Second)
	if err := l.Renew(ctx, "s", "a", time.Second); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("renew expired err = %v", err)
	}
}

func TestRedisLease(t *testing.T) {
	cfg, err := config.LoadTest()
	if err != nil || cfg.TestRedisAddr == "" {
		t.Skip("skip redis lease: TEST_REDIS_ADDR not set")
	}
	client, err := Dial(context.Background(), cfg.TestRedisAddr)
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	defer client.Close()
	exerciseLease(t, NewRedis(client, "roundtable:test:"), nil)
}

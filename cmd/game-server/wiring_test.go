package main

import (
	"context"
	"path/filepath"
	"testing"

	"roundtable/internal/archive"
	"roundtable/internal/config"
	"roundtable/internal/lease"
	"roundtable/internal/session"

	"github.com/jonboulle/clockwork"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	cfg := config.ServerConfig{StoreDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "rt.db")}
	st, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer closeFn()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, _, err := openStore(ctx, config.ServerConfig{StoreDriver: "mysql"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOptionalBackendsDefaultToLocal(t *testing.T) {
	ctx := context.Background()
	l, closeFn, err := newLease(ctx, config.ServerConfig{}, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("new lease: %v", err)
	}
	defer closeFn()
	if _, ok := l.(*lease.Local); !ok {
		t.Fatalf("expected local lease, got %T", l)
	}

	a, err := newArchiver(ctx, config.ServerConfig{})
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	if _, ok := a.(archive.Noop); !ok {
		t.Fatalf("expected noop archiver, got %T", a)
	}

	n, closeNotifier, err := newNotifier(ctx, config.ServerConfig{})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	defer closeNotifier()
	if _, ok := n.(session.LogNotifier); !ok {
		t.Fatalf("expected log notifier, got %T", n)
	}
}

func TestRegistryServesBothVariants(t *testing.T) {
	games, err := newRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, id := range []string{"highcard", "highcard-daily"} {
		if _, err := games.Get(id, 0); err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
	}
	if nodeID() == "" {
		t.Fatalf("empty node id")
	}
}

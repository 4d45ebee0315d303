package main

import (
	"context"
	"fmt"
	"os"

	"roundtable/internal/archive"
	"roundtable/internal/config"
	"roundtable/internal/game"
	"roundtable/internal/games/highcard"
	"roundtable/internal/lease"
	"roundtable/internal/notify"
	"roundtable/internal/session"
	"roundtable/internal/store"
	"roundtable/internal/store/sqlite"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type sessionStore interface {
	session.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.ServerConfig) (sessionStore, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		st, err := store.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		return st, st.Close, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newRegistry() (*game.Registry, error) {
	return game.NewRegistry(highcard.New(), highcard.NewDaily())
}

func newLease(ctx context.Context, cfg config.ServerConfig, clock clockwork.Clock) (lease.Lease, func(), error) {
	if cfg.RedisAddr == "" {
		return lease.NewLocal(clock), func() {}, nil
	}
	client, err := lease.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis lease enabled")
	return lease.NewRedis(client, "roundtable:lease:"), func() { _ = client.Close() }, nil
}

func newArchiver(ctx context.Context, cfg config.ServerConfig) (session.Archiver, error) {
	if cfg.ArchiveBucket == "" {
		return archive.Noop{}, nil
	}
	s3, err := archive.NewS3(ctx, archive.Config{
		Bucket:   cfg.ArchiveBucket,
		Prefix:   cfg.ArchivePrefix,
		Region:   cfg.ArchiveRegion,
		Endpoint: cfg.ArchiveEndpoint,
		KeyID:    cfg.ArchiveKeyID,
		Secret:   cfg.ArchiveSecret,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("bucket", cfg.ArchiveBucket).Msg("session archive enabled")
	return s3, nil
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// newNotifier pushes turn reminders to the configured webhooks, or logs them
// when none is set.
func newNotifier(ctx context.Context, cfg config.ServerConfig) (session.Notifier, func(), error) {
	var targets []notify.Target
	if cfg.NotifyDiscordWebhook != "" {
		targets = append(targets, notify.Target{Platform: "discord", Endpoint: cfg.NotifyDiscordWebhook})
	}
	if cfg.NotifyFeishuWebhook != "" {
		targets = append(targets, notify.Target{Platform: "feishu", Endpoint: cfg.NotifyFeishuWebhook, Secret: cfg.NotifyFeishuSecret})
	}
	if len(targets) == 0 {
		return session.LogNotifier{}, func() {}, nil
	}
	p, err := notify.New(notify.Config{Targets: targets, RetryMax: cfg.NotifyRetryMax})
	if err != nil {
		return nil, nil, err
	}
	p.Start(ctx)
	return p, p.Close, nil
}

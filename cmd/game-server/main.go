package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roundtable/internal/auth"
	"roundtable/internal/config"
	"roundtable/internal/logging"
	"roundtable/internal/mcpserver"
	"roundtable/internal/scheduler"
	"roundtable/internal/scheduler/wake"
	"roundtable/internal/session"
	httptransport "roundtable/internal/transport/http"
	"roundtable/internal/ws"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	app, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	if err := logging.Init(app.Log); err != nil {
		panic(err)
	}
	defer logging.Close()
	cfg := app.Server

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store init failed")
	}
	defer closeStore()

	games, err := newRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("game registry init failed")
	}
	loc, err := time.LoadLocation(cfg.SessionTimeZone)
	if err != nil {
		log.Fatal().Err(err).Str("time_zone", cfg.SessionTimeZone).Msg("invalid session time zone")
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("archive init failed")
	}
	notifier, closeNotifier, err := newNotifier(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("notifier init failed")
	}
	defer closeNotifier()
	l, closeLease, err := newLease(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("lease init failed")
	}
	defer closeLease()

	timers, err := wake.NewCronTimers(clock)
	if err != nil {
		log.Fatal().Err(err).Msg("wake scheduler init failed")
	}
	defer func() {
		if err := timers.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("wake scheduler shutdown failed")
		}
	}()

	host := session.NewHost(session.Deps{
		Store:    st,
		Games:    games,
		Clock:    clock,
		Notifier: notifier,
		Archiver: archiver,
		Config: session.Config{
			TurnReminderAfter: cfg.TurnReminderAfter,
			InviteTTL:         cfg.InviteTTL,
			Location:          loc,
		},
	}, session.HostOptions{
		NodeID:      nodeID(),
		IdleTimeout: cfg.ActorIdleTimeout,
		Lease:       l,
		Timers:      func(id string) scheduler.WakeTimer { return timers.Timer(id) },
		Cron:        timers.Scheduler(),
	})
	if err := host.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("session host start failed")
	}
	defer host.Shutdown()

	tokens, err := auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer init failed")
	}
	r := httptransport.NewRouter(httptransport.RouterDeps{
		Store:    st,
		Host:     host,
		Tokens:   tokens,
		WS:       ws.NewServer(host, tokens).HandleWS,
		MCP:      mcpserver.New(host, tokens).Handler(),
		AdminKey: cfg.AdminAPIKey,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.StoreDriver).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}

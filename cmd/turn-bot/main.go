package main

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"roundtable/internal/client"
	"roundtable/internal/config"
	"roundtable/internal/game"
	"roundtable/internal/games/highcard"
	"roundtable/internal/logging"
	"roundtable/internal/session"
	"roundtable/internal/store"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type stateView struct {
	Session     store.Session        `json:"session"`
	Round       *game.RoundDecision  `json:"round"`
	PlayerState *highcard.PlayerView `json:"player_state"`
}

func main() {
	_ = godotenv.Load()
	logCfg, err := config.LoadLog("turn-bot")
	if err != nil {
		panic(err)
	}
	if err := logging.Init(logCfg); err != nil {
		panic(err)
	}
	defer logging.Close()
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("load client config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.Config{
		ServerURL:      cfg.ServerURL,
		SessionID:      cfg.SessionID,
		PlayerID:       cfg.PlayerID,
		RequestTimeout: cfg.RequestTimeout,
		OutboxPath:     cfg.OutboxPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect failed")
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	b := &bot{c: c, rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), played: -1}
	if _, err := c.Request(ctx, session.RequestReadyUp, session.ReadyUpRequest{}); err != nil {
		log.Warn().Err(err).Msg("ready up failed")
	}
	if b.step(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-c.Notifications():
			if !ok {
				log.Error().Err(c.Err()).Msg("session channel closed")
				return
			}
			switch n.Type {
			case session.NotifyGameStarting, session.NotifyRoundChange, session.NotifyStatusChange, session.NotifyResync:
				if b.step(ctx) {
					return
				}
			}
		}
	}
}

type bot struct {
	c      *client.Client
	rng    *rand.Rand
	played int
}

// step plays a card if one is due and reports whether the game is over.
func (b *bot) step(ctx context.Context) bool {
	raw, err := b.c.Request(ctx, session.RequestGetState, nil)
	if err != nil {
		log.Warn().Err(err).Msg("get state failed")
		return false
	}
	var st stateView
	if err := json.Unmarshal(raw, &st); err != nil {
		log.Warn().Err(err).Msg("decode state failed")
		return false
	}
	switch st.Session.Status {
	case store.SessionComplete, store.SessionAbandoned:
		log.Info().Str("status", st.Session.Status).Strs("winners", st.Session.WinnerIDs).Msg("game over")
		return true
	case store.SessionActive:
	default:
		return false
	}
	if st.Round == nil || st.PlayerState == nil || len(st.PlayerState.Hand) == 0 || st.Round.RoundIndex == b.played {
		return false
	}
	if !slices.Contains(st.Round.PendingTurns, b.c.PlayerID()) {
		return false
	}
	card := st.PlayerState.Hand[b.rng.IntN(len(st.PlayerState.Hand))]
	turn, _ := json.Marshal(highcard.TurnData{Card: card})

	// Think for a moment with the turn buffered, then commit it.
	if err := b.c.DelaySubmitTurn(ctx, turn); err != nil {
		log.Warn().Err(err).Msg("buffer turn failed")
		return false
	}
	time.Sleep(time.Duration(200+b.rng.IntN(800)) * time.Millisecond)
	if err := b.c.Flush(ctx); err != nil {
		log.Warn().Err(err).Str("card", card).Msg("submit turn failed")
		return false
	}
	b.played = st.Round.RoundIndex
	log.Info().Int("round_index", b.played).Str("card", card).Msg("turn played")
	return false
}

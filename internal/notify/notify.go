// Package notify delivers turn reminders to chat webhooks. Sends happen on a
// background worker with exponential retry so the session actor never waits
// on a third party.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Target struct {
	Platform string
	Endpoint string
	Secret   string
}

type Config struct {
	Targets     []Target
	QueueSize   int
	RetryMax    int
	RetryBase   time.Duration
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	return c
}

type job struct {
	target  Target
	msg     Message
	attempt int
}

// Pusher implements the session Notifier boundary.
type Pusher struct {
	cfg      Config
	adapters map[string]Adapter
	jobs     chan job
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(cfg Config) (*Pusher, error) {
	cfg = cfg.withDefaults()
	client := newHTTPClient(cfg.SendTimeout)
	p := &Pusher{
		cfg: cfg,
		adapters: map[string]Adapter{
			"discord": &DiscordAdapter{client: client},
			"feishu":  &FeishuAdapter{client: client},
		},
		jobs: make(chan job, cfg.QueueSize),
		done: make(chan struct{}),
	}
	for _, t := range cfg.Targets {
		if _, ok := p.adapters[t.Platform]; !ok {
			return nil, fmt.Errorf("unknown notify platform %q", t.Platform)
		}
		if strings.TrimSpace(t.Endpoint) == "" {
			return nil, fmt.Errorf("notify target %s has no endpoint", t.Platform)
		}
	}
	return p, nil
}

// Start runs the delivery worker until ctx ends or Close is called.
func (p *Pusher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case j := <-p.jobs:
				pushQueueLen.Set(float64(len(p.jobs)))
				p.process(ctx, j)
			}
		}
	}()
}

func (p *Pusher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

// RemindTurn queues one reminder per target. It never blocks; a full queue
// drops the reminder.
func (p *Pusher) RemindTurn(_ context.Context, sessionID string, roundIndex int, playerIDs []string) error {
	msg := reminderMessage(sessionID, roundIndex, playerIDs)
	for _, t := range p.cfg.Targets {
		p.enqueue(job{target: t, msg: msg}, 0)
	}
	return nil
}

func reminderMessage(sessionID string, roundIndex int, playerIDs []string) Message {
	return Message{
		Title:       "Your turn is waiting",
		Description: fmt.Sprintf("Round %d is waiting on %s.", roundIndex+1, strings.Join(playerIDs, ", ")),
		Color:       0xF5A623,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []Field{
			{Name: "Session", Value: sessionID, Inline: true},
			{Name: "Pending", Value: fmt.Sprint(len(playerIDs)), Inline: true},
		},
	}
}

func (p *Pusher) enqueue(j job, delay time.Duration) {
	send := func() {
		select {
		case <-p.done:
		case p.jobs <- j:
			pushQueueLen.Set(float64(len(p.jobs)))
		default:
			pushDroppedTotal.WithLabelValues("queue_full").Inc()
		}
	}
	if delay <= 0 {
		send()
		return
	}
	time.AfterFunc(delay, send)
}

func (p *Pusher) process(ctx context.Context, j job) {
	adapter := p.adapters[j.target.Platform]
	err := adapter.Send(ctx, j.target.Endpoint, j.target.Secret, j.msg)
	if err == nil {
		pushSentTotal.WithLabelValues(adapter.Name()).Inc()
		return
	}
	pushFailedTotal.WithLabelValues(adapter.Name()).Inc()
	if j.attempt >= p.cfg.RetryMax {
		pushDroppedTotal.WithLabelValues("retries_exhausted").Inc()
		log.Warn().Err(err).Str("platform", adapter.Name()).Int("attempts", j.attempt+1).Msg("reminder push dropped")
		return
	}
	j.attempt++
	p.enqueue(j, p.cfg.RetryBase*time.Duration(1<<(j.attempt-1)))
}

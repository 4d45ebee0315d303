package session

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// Notification is one server-to-client push. EventID is "<epoch>-<seq>"; the
// epoch changes whenever the actor is reloaded so stale ids are detectable.
type Notification struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	ServerTS  int64  `json:"server_ts"`
	Data      any    `json:"data"`
}

var epochSeq atomic.Int64

// Broadcaster fans notifications out to subscribers and keeps a bounded
// ring of recent ones for replay. Slow subscribers miss events rather than
// block the actor.
type Broadcaster struct {
	mu        sync.Mutex
	sessionID string
	epoch     string
	clock     clockwork.Clock
	nextID    int64
	max       int
	events    []Notification
	watchers  map[chan Notification]struct{}
	closed    bool
}

func NewBroadcaster(sessionID string, clock clockwork.Clock, max int) *Broadcaster {
	if max <= 0 {
		max = 500
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Broadcaster{
		sessionID: sessionID,
		epoch:     strconv.FormatInt(clock.Now().UnixNano(), 36) + "." + strconv.FormatInt(epochSeq.Add(1), 36),
		clock:     clock,
		max:       max,
		watchers:  map[chan Notification]struct{}{},
	}
}

func (b *Broadcaster) Append(typ string, data any) Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Notification{}
	}
	b.nextID++
	n := Notification{
		EventID:   b.epoch + "-" + strconv.FormatInt(b.nextID, 10),
		Type:      typ,
		SessionID: b.sessionID,
		ServerTS:  b.clock.Now().UnixMilli(),
		Data:      data,
	}
	b.events = append(b.events, n)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- n:
		default:
			notificationsDropped.Inc()
		}
	}
	notificationsTotal.WithLabelValues(typ).Inc()
	return n
}

// LastEventID is the id of the newest notification, empty before the first.
func (b *Broadcaster) LastEventID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nextID == 0 {
		return ""
	}
	return b.epoch + "-" + strconv.FormatInt(b.nextID, 10)
}

// ReplayAfter returns the notifications after lastEventID. ok is false when
// the id belongs to another epoch or has already been trimmed from the ring;
// the caller must then resync from a full state read.
func (b *Broadcaster) ReplayAfter(lastEventID string) ([]Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lastEventID == "" {
		return nil, true
	}
	epoch, seqStr, found := strings.Cut(lastEventID, "-")
	if !found || epoch != b.epoch {
		return nil, false
	}
	last, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || last > b.nextID {
		return nil, false
	}
	if last == b.nextID {
		return nil, true
	}
	oldest := b.nextID - int64(len(b.events)) + 1
	if last+1 < oldest {
		return nil, false
	}
	return append([]Notification(nil), b.events[last+1-oldest:]...), true
}

func (b *Broadcaster) Subscribe() chan Notification {
	ch := make(chan Notification, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

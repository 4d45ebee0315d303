// Package lease grants exclusive, expiring ownership of a session so at most
// one process hosts its actor.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrHeld    = errors.New("lease_held")
	ErrNotHeld = errors.New("lease_not_held")
)

type Lease interface {
	// Acquire claims key for owner until ttl elapses. It fails with ErrHeld
	// when another owner holds an unexpired claim.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) error
	// Renew extends a claim owner already holds.
	Renew(ctx context.Context, key, owner string, ttl time.Duration) error
	// Release drops the claim if owner still holds it.
	Release(ctx context.Context, key, owner string) error
}

type claim struct {
	owner   string
	expires time.Time
}

// Local is an in-process Lease for single-node deployments.
type Local struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	claims map[string]claim
}

func NewLocal(clock clockwork.Clock) *Local {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Local{clock: clock, claims: map[string]claim{}}
}

func (l *Local) Acquire(_ context.Context, key, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if c, ok := l.claims[key]; ok && c.owner != owner && now.Before(c.expires) {
		return ErrHeld
	}
	l.claims[key] = claim{owner: owner, expires: now.Add(ttl)}
	return nil
}

func (l *Local) Renew(_ context.Context, key, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	c, ok := l.claims[key]
	if !ok || c.owner != owner || !now.Before(c.expires) {
		return ErrNotHeld
	}
	l.claims[key] = claim{owner: owner, expires: now.Add(ttl)}
	return nil
}

func (l *Local) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.claims[key]; ok && c.owner == owner {
		delete(l.claims, key)
	}
	return nil
}

package game

import (
	"encoding/json"
	"fmt"
	"sort"

	"roundtable/internal/game/random"
)

// Checkpoint is the derived state after folding rounds 0..RoundIndex.
type Checkpoint struct {
	State      json.RawMessage
	Random     random.State
	TurnCount  int
	RoundIndex int
}

// Eviction bounds how many checkpoints a cache retains: the most recent
// KeepLast plus every checkpoint whose round index is a multiple of KeepEvery.
type Eviction struct {
	KeepLast  int
	KeepEvery int
}

var DefaultEviction = Eviction{KeepLast: 8, KeepEvery: 16}

type CacheStats struct {
	Hits   int
	Misses int
	// LastBaseRound is the checkpoint the last miss folded from, -1 for the
	// initial state.
	LastBaseRound    int
	LastFoldedRounds int
}

type CacheOption func(*StateCache)

func WithEviction(e Eviction) CacheOption {
	return func(c *StateCache) { c.eviction = e }
}

// WithoutCache makes every State call fold from the initial state.
func WithoutCache() CacheOption {
	return func(c *StateCache) { c.disabled = true }
}

// StateCache derives global state for a prefix of rounds, reusing
// checkpoints from earlier calls. It is owned by one session and is not safe
// for concurrent use.
type StateCache struct {
	def     Definition
	seed    string
	members []string

	initial       json.RawMessage
	initialRandom random.State
	haveInitial   bool

	checkpoints []Checkpoint
	eviction    Eviction
	disabled    bool
	stats       CacheStats
}

func NewStateCache(def Definition, seed string, members []string, opts ...CacheOption) *StateCache {
	c := &StateCache{
		def:      def,
		seed:     seed,
		members:  append([]string(nil), members...),
		eviction: DefaultEviction,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats.LastBaseRound = -1
	return c
}

func (c *StateCache) Stats() CacheStats { return c.stats }

// Checkpoints returns the round indexes currently retained, ascending.
func (c *StateCache) Checkpoints() []int {
	out := make([]int, 0, len(c.checkpoints))
	for _, cp := range c.checkpoints {
		out = append(out, cp.RoundIndex)
	}
	return out
}

// Invalidate drops every checkpoint at or after round. Callers use it when a
// turn in an already folded round is replaced.
func (c *StateCache) Invalidate(round int) {
	kept := c.checkpoints[:0]
	for _, cp := range c.checkpoints {
		if cp.RoundIndex < round {
			kept = append(kept, cp)
		}
	}
	c.checkpoints = kept
}

// State returns the global state after folding rounds[0..len(rounds)-1].
// The returned bytes are a private copy.
func (c *StateCache) State(rounds []Round) (json.RawMessage, error) {
	if err := c.ensureInitial(); err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return cloneState(c.initial), nil
	}
	k := len(rounds) - 1

	if c.disabled {
		c.stats.Misses++
		state, _, err := c.fold(c.initial, c.initialRandom, rounds, 0)
		c.stats.LastBaseRound = -1
		c.stats.LastFoldedRounds = len(rounds)
		cacheMisses.Inc()
		return state, err
	}

	base, ok := c.usableCheckpoint(rounds)
	if ok && base.RoundIndex == k {
		c.stats.Hits++
		cacheHits.Inc()
		return cloneState(base.State), nil
	}

	c.stats.Misses++
	cacheMisses.Inc()
	startState, startRandom, from := c.initial, c.initialRandom, 0
	c.stats.LastBaseRound = -1
	if ok {
		startState, startRandom, from = base.State, base.Random, base.RoundIndex+1
		c.stats.LastBaseRound = base.RoundIndex
	}
	state, rngState, err := c.fold(startState, startRandom, rounds, from)
	if err != nil {
		return nil, err
	}
	c.stats.LastFoldedRounds = k - from + 1
	foldedRounds.Observe(float64(k - from + 1))

	c.store(Checkpoint{
		State:      cloneState(state),
		Random:     rngState,
		TurnCount:  len(rounds[k]),
		RoundIndex: k,
	})
	return state, nil
}

func (c *StateCache) ensureInitial() error {
	if c.haveInitial {
		return nil
	}
	rng := random.New(c.seed)
	state, err := c.def.InitialState(rng, c.members)
	if err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	c.initial = cloneState(state)
	c.initialRandom = rng.Export()
	c.haveInitial = true
	return nil
}

// usableCheckpoint picks the newest checkpoint whose round still has the turn
// count it was built with. Anything from a stale round onward is dropped.
func (c *StateCache) usableCheckpoint(rounds []Round) (Checkpoint, bool) {
	k := len(rounds) - 1
	for i := len(c.checkpoints) - 1; i >= 0; i-- {
		cp := c.checkpoints[i]
		if cp.RoundIndex > k {
			continue
		}
		if cp.TurnCount != len(rounds[cp.RoundIndex]) {
			c.Invalidate(cp.RoundIndex)
			// Invalidate only removed entries at or after i.
			continue
		}
		return cp, true
	}
	return Checkpoint{}, false
}

func (c *StateCache) fold(start json.RawMessage, rngState random.State, rounds []Round, from int) (json.RawMessage, random.State, error) {
	rng, err := random.Restore(rngState)
	if err != nil {
		return nil, "", err
	}
	state := cloneState(start)
	for i := from; i < len(rounds); i++ {
		state, err = c.def.ApplyRound(state, rounds[i], rng)
		if err != nil {
			return nil, "", fmt.Errorf("apply round %d: %w", i, err)
		}
	}
	return state, rng.Export(), nil
}

func (c *StateCache) store(cp Checkpoint) {
	idx := sort.Search(len(c.checkpoints), func(i int) bool {
		return c.checkpoints[i].RoundIndex >= cp.RoundIndex
	})
	if idx < len(c.checkpoints) && c.checkpoints[idx].RoundIndex == cp.RoundIndex {
		c.checkpoints[idx] = cp
	} else {
		c.checkpoints = append(c.checkpoints, Checkpoint{})
		copy(c.checkpoints[idx+1:], c.checkpoints[idx:])
		c.checkpoints[idx] = cp
	}
	c.evict()
}

func (c *StateCache) evict() {
	last := c.eviction.KeepLast
	if last <= 0 || len(c.checkpoints) <= last {
		return
	}
	cut := len(c.checkpoints) - last
	kept := make([]Checkpoint, 0, last+cut/max(c.eviction.KeepEvery, 1)+1)
	for i, cp := range c.checkpoints {
		if i >= cut || (c.eviction.KeepEvery > 0 && cp.RoundIndex%c.eviction.KeepEvery == 0) {
			kept = append(kept, cp)
		}
	}
	c.checkpoints = kept
}

// Fold derives the state for rounds without any caching.
func Fold(def Definition, seed string, members []string, rounds []Round) (json.RawMessage, error) {
	return NewStateCache(def, seed, members, WithoutCache()).State(rounds)
}

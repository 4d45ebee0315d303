package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gosimple/slug"
)

var (
	ErrUnknownGame    = errors.New("unknown_game")
	ErrDuplicateGame  = errors.New("duplicate_game")
	ErrInvalidGameKey = errors.New("invalid_game_key")
)

type registryKey struct {
	id      string
	version int
}

// Registry maps (game id, version) to definitions. Ids are slug-normalized so
// "High Card" and "high-card" resolve to the same entry.
type Registry struct {
	mu     sync.RWMutex
	defs   map[registryKey]Definition
	latest map[string]int
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:   map[registryKey]Definition{},
		latest: map[string]int{},
	}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func NormalizeID(id string) string {
	return slug.Make(id)
}

func (r *Registry) Register(d Definition) error {
	id := NormalizeID(d.ID())
	if id == "" || d.Version() < 1 {
		return fmt.Errorf("%w: %q@%d", ErrInvalidGameKey, d.ID(), d.Version())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{id: id, version: d.Version()}
	if _, ok := r.defs[key]; ok {
		return fmt.Errorf("%w: %s@%d", ErrDuplicateGame, id, d.Version())
	}
	r.defs[key] = d
	if d.Version() > r.latest[id] {
		r.latest[id] = d.Version()
	}
	return nil
}

// Get resolves a definition. Version 0 selects the latest registered version.
func (r *Registry) Get(id string, version int) (Definition, error) {
	id = NormalizeID(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if version == 0 {
		version = r.latest[id]
	}
	d, ok := r.defs[registryKey{id: id, version: version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d", ErrUnknownGame, id, version)
	}
	return d, nil
}

type GameInfo struct {
	ID         string `json:"id"`
	Version    int    `json:"version"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

func (r *Registry) List() []GameInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GameInfo, 0, len(r.defs))
	for key, d := range r.defs {
		out = append(out, GameInfo{ID: key.id, Version: key.version, MinPlayers: d.MinPlayers(), MaxPlayers: d.MaxPlayers()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID == out[j].ID {
			return out[i].Version < out[j].Version
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Package random provides the seeded generator every game rule draws from.
// Two generators built from the same seed produce the same values for the
// same call sequence, and a generator can be exported and resumed exactly.
package random

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/rand/v2"
)

// State is an opaque snapshot of a Generator.
type State string

var ErrInvalidState = errors.New("invalid_random_state")

const idAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const idLength = 10

type Generator struct {
	src *rand.PCG
	rng *rand.Rand
}

func New(seed string) *Generator {
	sum := sha256.Sum256([]byte(seed))
	src := rand.NewPCG(binary.BigEndian.Uint64(sum[0:8]), binary.BigEndian.Uint64(sum[8:16]))
	return &Generator{src: src, rng: rand.New(src)}
}

func Restore(state State) (*Generator, error) {
	raw, err := base64.RawStdEncoding.DecodeString(string(state))
	if err != nil {
		return nil, errors.Join(ErrInvalidState, err)
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(raw); err != nil {
		return nil, errors.Join(ErrInvalidState, err)
	}
	return &Generator{src: src, rng: rand.New(src)}, nil
}

func (g *Generator) Export() State {
	raw, err := g.src.MarshalBinary()
	if err != nil {
		// PCG.MarshalBinary never fails.
		panic(err)
	}
	return State(base64.RawStdEncoding.EncodeToString(raw))
}

// Int returns a uniform integer in [min, max].
func (g *Generator) Int(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + g.rng.IntN(max-min+1)
}

// Float returns a uniform float in [min, max).
func (g *Generator) Float(min, max float64) float64 {
	if max < min {
		min, max = max, min
	}
	return min + g.rng.Float64()*(max-min)
}

func (g *Generator) Bool() bool {
	return g.rng.IntN(2) == 1
}

// ID returns a short identifier unique within the stream of this generator
// with overwhelming probability.
func (g *Generator) ID() string {
	b := make([]byte, idLength)
	for i := range b {
		b[i] = idAlphabet[g.rng.IntN(len(idAlphabet))]
	}
	return string(b)
}

// Pick returns one element of items. The second result is false when items is empty.
func Pick[T any](g *Generator, items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[g.rng.IntN(len(items))], true
}

// Shuffle returns a shuffled copy of items and leaves the input untouched.
func Shuffle[T any](g *Generator, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

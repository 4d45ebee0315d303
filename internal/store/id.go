package store

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// NewID returns a ULID, monotonic within this process.
func NewID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// NewSeed returns an unpredictable game seed.
func NewSeed() string {
	b := make([]byte, 16)
	if _, err := crand.Read(b); err != nil {
		return NewID()
	}
	return hex.EncodeToString(b)
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const outboxBucket = "outbox"

// Outbox holds at most one delayed turn per session and player.
type Outbox interface {
	Put(ctx context.Context, key string, turn json.RawMessage) error
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// BoltOutbox keeps delayed turns in a BoltDB file so they survive restarts.
type BoltOutbox struct {
	db *bbolt.DB
}

func OpenBoltOutbox(path string) (*BoltOutbox, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("outbox path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(outboxBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create outbox bucket: %w", err)
	}
	return &BoltOutbox{db: db}, nil
}

func (o *BoltOutbox) Put(ctx context.Context, key string, turn json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(outboxBucket)).Put([]byte(key), turn)
	})
}

func (o *BoltOutbox) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var out json.RawMessage
	err := o.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(outboxBucket)).Get([]byte(key)); v != nil {
			// Bolt values are only valid inside the transaction.
			out = append(json.RawMessage(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (o *BoltOutbox) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(outboxBucket)).Delete([]byte(key))
	})
}

func (o *BoltOutbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}

type memoryOutbox struct {
	mu    sync.Mutex
	turns map[string]json.RawMessage
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{turns: map[string]json.RawMessage{}}
}

func (o *memoryOutbox) Put(_ context.Context, key string, turn json.RawMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns[key] = append(json.RawMessage(nil), turn...)
	return nil
}

func (o *memoryOutbox) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.turns[key]
	return t, ok, nil
}

func (o *memoryOutbox) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.turns, key)
	return nil
}

func (o *memoryOutbox) Close() error { return nil }

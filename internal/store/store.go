package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrSchemaMissing means the database answers but migrations were not
	// applied.
	ErrSchemaMissing = errors.New("schema_missing")
)

// schemaProbe is the last table created by the init migration.
const schemaProbe = "scheduled_tasks"

// Store keeps sessions, turns, chat and scheduled tasks in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// New opens a pool tagged with the application name. Sessions run in UTC so
// timestamps read back match the microsecond-truncated UTC values written.
func New(dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	params := cfg.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = "roundtable"
	}
	params["timezone"] = "UTC"
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Ping checks connectivity and that the schema is in place.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var present bool
	if err := s.Pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, schemaProbe).Scan(&present); err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: table %s not found", ErrSchemaMissing, schemaProbe)
	}
	return nil
}

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS conversation_threads (
	thread_id  TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists threads as JSONB rows in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at url and verifies the
// connection with a ping.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres checkpoint: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres checkpoint: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Setup implements Store. It creates the threads table if missing.
func (s *PostgresStore) Setup(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("postgres checkpoint: setup: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, threadID string) (*Thread, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM conversation_threads WHERE thread_id = $1`, threadID,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres checkpoint: load %s: %w", threadID, err)
	}

	var thread Thread
	if err := json.Unmarshal(state, &thread); err != nil {
		return nil, fmt.Errorf("postgres checkpoint: decode %s: %w", threadID, err)
	}
	return &thread, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, thread *Thread) error {
	state, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("postgres checkpoint: encode %s: %w", thread.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_threads (thread_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		thread.ID, state,
	)
	if err != nil {
		return fmt.Errorf("postgres checkpoint: save %s: %w", thread.ID, err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_threads WHERE thread_id = $1`, threadID,
	); err != nil {
		return fmt.Errorf("postgres checkpoint: delete %s: %w", threadID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

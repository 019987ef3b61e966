package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBlobStore keeps blobs in a Postgres table, for deployments that
// already run a database.
type PostgresBlobStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS invoicecraft_blobs (
	key        TEXT PRIMARY KEY,
	body       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func OpenPostgres(ctx context.Context, dbURL string) (*PostgresBlobStore, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("postgres url is not set")
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresBlobStore{pool: pool}, nil
}

func (s *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM invoicecraft_blobs WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select blob: %w", err)
	}
	return body, nil
}

func (s *PostgresBlobStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoicecraft_blobs (key, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, key, body)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}

func (s *PostgresBlobStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteBlobStore keeps blobs in a single-table SQLite database.
type SQLiteBlobStore struct {
	db *sql.DB
}

func sqliteMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// OpenSQLite opens (creating if needed) invoicecraft.db inside dir.
func OpenSQLite(dir string) (*SQLiteBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := filepath.Join(dir, "invoicecraft.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps SQLite happy and matches the single-writer store
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteMigrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return &SQLiteBlobStore{db: db}, nil
}

func (s *SQLiteBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM blobs WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select blob: %w", err)
	}
	return body, nil
}

func (s *SQLiteBlobStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, body, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			body       = excluded.body,
			updated_at = datetime('now')
	`, key, body)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	return nil
}

func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}

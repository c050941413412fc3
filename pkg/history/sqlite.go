package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS exchanges (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	prompt     TEXT NOT NULL,
	reply      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_provider_created
	ON exchanges (provider, created_at DESC);
`

// SQLiteStore persists exchanges in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// WAL lets reads proceed while a job's exchange is being written.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, ex Exchange) error {
	ex = stamp(ex)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (id, provider, prompt, reply, created_at) VALUES (?, ?, ?, ?, ?)`,
		ex.ID, ex.Provider, ex.Prompt, ex.Reply, ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastReply(ctx context.Context, provider string) (string, error) {
	var reply string
	err := s.db.QueryRowContext(ctx,
		`SELECT reply FROM exchanges WHERE provider = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		provider).Scan(&reply)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading last reply: %w", err)
	}
	return reply, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, provider string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, prompt, reply, created_at FROM exchanges
		 WHERE provider = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		provider, limit)
	if err != nil {
		return nil, fmt.Errorf("loading exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ID, &ex.Provider, &ex.Prompt, &ex.Reply, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

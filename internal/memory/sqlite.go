package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const sqliteBusyTimeoutMS = 5000

// SQLiteStore keeps the memory document in a local SQLite database, one row
// per user. Writes are serialised through a single connection.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", sqliteBusyTimeoutMS),
		`CREATE TABLE IF NOT EXISTS conversation_memory (
			user_id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init failed on %q: %w", stmt, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, messages FROM conversation_memory`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query memory: %w", err)
	}
	defer rows.Close()

	out := make(Snapshot)
	for rows.Next() {
		var userID, raw string
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory row: %w", err)
		}
		var log []Message
		if err := json.Unmarshal([]byte(raw), &log); err != nil {
			return nil, fmt.Errorf("sqlite: decode memory for %q: %w", userID, err)
		}
		out[userID] = log
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snapshot Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin memory save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_memory`); err != nil {
		return fmt.Errorf("sqlite: clear memory: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO conversation_memory (user_id, messages) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for userID, log := range snapshot {
		raw, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("sqlite: encode memory for %q: %w", userID, err)
		}
		if _, err := stmt.ExecContext(ctx, userID, string(raw)); err != nil {
			return fmt.Errorf("sqlite: insert memory for %q: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit memory save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Package sqlite stores the phone-save marker in a local SQLite key/value table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// SQLiteMarkerStore keeps the marker as one row of a shared kv table.
type SQLiteMarkerStore struct {
	db  *sql.DB
	key string
}

// Open opens (or creates) the SQLite database at dbPath and ensures the kv
// table exists.
func Open(dbPath, key string) (*SQLiteMarkerStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if key == "" {
		key = store.DefaultMarkerKey
	}

	slog.Info("marker store opened", "driver", "sqlite", "path", dbPath)
	return &SQLiteMarkerStore{db: db, key: key}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`)
	return err
}

func (s *SQLiteMarkerStore) Get(ctx context.Context) (*store.SaveMarker, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", s.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	var m store.SaveMarker
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		slog.Warn("marker: ignoring unreadable row", "key", s.key, "error", err)
		return nil, nil
	}
	return &m, nil
}

func (s *SQLiteMarkerStore) Put(ctx context.Context, m store.SaveMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.key, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *SQLiteMarkerStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", s.key); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *SQLiteMarkerStore) Close() error {
	return s.db.Close()
}

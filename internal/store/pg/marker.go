package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// PGMarkerStore implements store.MarkerStore as one row of the
// pairlink_markers table.
type PGMarkerStore struct {
	db  *sql.DB
	key string
}

// Open connects to dsn and ensures the markers table exists.
func Open(ctx context.Context, dsn, key string) (*PGMarkerStore, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, db, key)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and ensures the markers table exists.
// Close closes db.
func New(ctx context.Context, db *sql.DB, key string) (*PGMarkerStore, error) {
	if key == "" {
		key = store.DefaultMarkerKey
	}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS pairlink_markers (
		key        TEXT PRIMARY KEY,
		saved_at   TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return nil, fmt.Errorf("create markers table: %w", err)
	}
	slog.Info("marker store opened", "driver", "postgres")
	return &PGMarkerStore{db: db, key: key}, nil
}

func (s *PGMarkerStore) Get(ctx context.Context) (*store.SaveMarker, error) {
	var savedAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT saved_at FROM pairlink_markers WHERE key = $1", s.key).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	return &store.SaveMarker{SavedAt: savedAt}, nil
}

func (s *PGMarkerStore) Put(ctx context.Context, m store.SaveMarker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pairlink_markers (key, saved_at, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET saved_at = EXCLUDED.saved_at, updated_at = now()`,
		s.key, m.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *PGMarkerStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pairlink_markers WHERE key = $1", s.key); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *PGMarkerStore) Close() error {
	return s.db.Close()
}

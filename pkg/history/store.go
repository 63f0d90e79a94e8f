// Package history keeps a per-guild log of played tracks in SQLite.
package history

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Entry is one played track
type Entry struct {
	ID       int64
	GuildID  string
	URL      string
	Name     string
	PlayedAt time.Time
}

// Store persists play history
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "open history database")
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize history database")
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			url TEXT NOT NULL,
			name TEXT NOT NULL,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history(guild_id, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_played_at ON play_history(played_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return errors.Wrap(err, "execute schema query")
		}
	}
	return nil
}

// Record stores a played track
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if e.PlayedAt.IsZero() {
		e.PlayedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO play_history (guild_id, url, name, played_at) VALUES (?, ?, ?, ?)`,
		e.GuildID, e.URL, e.Name, e.PlayedAt.UTC(),
	)
	return errors.Wrap(err, "insert play history")
}

// Recent returns up to limit entries for the guild, newest first
func (s *Store) Recent(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, url, name, played_at FROM play_history
		WHERE guild_id = ? ORDER BY played_at DESC, id DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query play history")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.GuildID, &e.URL, &e.Name, &e.PlayedAt); err != nil {
			return nil, errors.Wrap(err, "scan play history")
		}
		entries = append(entries, e)
	}

	return entries, errors.Wrap(rows.Err(), "iterate play history")
}

// Prune deletes entries played before cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM play_history WHERE played_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "prune play history")
	}

	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "count pruned rows")
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

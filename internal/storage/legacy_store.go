package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/sentience/sentience/internal/core"
)

// LegacyStore is the single rolling buffer of turns used when a request
// names no conversation. It never holds more than limit turns.
type LegacyStore struct {
	db    *DB
	limit int
}

// NewLegacyStore creates a buffer capped at limit turns
func NewLegacyStore(db *DB, limit int) *LegacyStore {
	if limit <= 0 {
		limit = 20
	}
	return &LegacyStore{db: db, limit: limit}
}

// Load returns the buffered turns oldest first
func (s *LegacyStore) Load(ctx context.Context) ([]core.Turn, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT role, content, created_at FROM legacy_turns ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

// AppendExchange adds a user turn and reply, then trims to the cap
func (s *LegacyStore) AppendExchange(ctx context.Context, user, assistant string, at time.Time) error {
	at = at.UTC()
	return s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		for _, t := range []core.Turn{
			{Role: core.RoleUser, Content: user},
			{Role: core.RoleAssistant, Content: assistant},
		} {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO legacy_turns (role, content, created_at) VALUES (?, ?, ?)",
				t.Role, t.Content, at); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM legacy_turns WHERE id NOT IN (
				SELECT id FROM legacy_turns ORDER BY id DESC LIMIT ?
			)
		`, s.limit)
		return err
	})
}

// Clear empties the buffer
func (s *LegacyStore) Clear(ctx context.Context) error {
	_, err := s.db.conn.ExecContext(ctx, "DELETE FROM legacy_turns")
	return err
}

// Count returns the number of buffered turns
func (s *LegacyStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM legacy_turns").Scan(&n)
	return n, err
}

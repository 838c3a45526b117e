package storage

import (
	"context"
	"database/sql"
	"time"
)

const (
	counterMessages = "messages"
	counterFiles    = "files"
	metaStartTime   = "start_time"
)

// Analytics is a snapshot of usage counters
type Analytics struct {
	MessageCount int64            `json:"messageCount"`
	FileCount    int64            `json:"fileCount"`
	ToolUsage    map[string]int64 `json:"toolUsage"`
	StartTime    time.Time        `json:"startTime"`
}

// AnalyticsStore persists usage counters
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates a new analytics store
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// IncrementMessageCount counts one model-answered message
func (s *AnalyticsStore) IncrementMessageCount(ctx context.Context) error {
	return s.increment(ctx, counterMessages)
}

// IncrementFileCount counts one upload
func (s *AnalyticsStore) IncrementFileCount(ctx context.Context) error {
	return s.increment(ctx, counterFiles)
}

// IncrementToolUsage counts one resolved tool call
func (s *AnalyticsStore) IncrementToolUsage(ctx context.Context, name string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO tool_usage (tool, count) VALUES (?, 1)
		ON CONFLICT(tool) DO UPDATE SET count = count + 1
	`, name)
	return err
}

func (s *AnalyticsStore) increment(ctx context.Context, name string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
	`, name)
	return err
}

// MarkStart records the first start time; later calls keep the original
func (s *AnalyticsStore) MarkStart(ctx context.Context, at time.Time) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, metaStartTime, at.UTC().Format(time.RFC3339))
	return err
}

// Snapshot returns every counter
func (s *AnalyticsStore) Snapshot(ctx context.Context) (*Analytics, error) {
	a := &Analytics{ToolUsage: map[string]int64{}}

	err := s.db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT value FROM counters WHERE name = ?), 0),
			COALESCE((SELECT value FROM counters WHERE name = ?), 0)
	`, counterMessages, counterFiles).Scan(&a.MessageCount, &a.FileCount)
	if err != nil {
		return nil, err
	}

	var start string
	err = s.db.conn.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", metaStartTime).Scan(&start)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if start != "" {
		a.StartTime, _ = time.Parse(time.RFC3339, start)
	}

	rows, err := s.db.conn.QueryContext(ctx, "SELECT tool, count FROM tool_usage")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tool string
		var n int64
		if err := rows.Scan(&tool, &n); err != nil {
			return nil, err
		}
		a.ToolUsage[tool] = n
	}
	return a, rows.Err()
}

// ToolCount returns the usage count of one tool
func (s *AnalyticsStore) ToolCount(ctx context.Context, name string) (int64, error) {
	var n int64
	err := s.db.conn.QueryRowContext(ctx, "SELECT count FROM tool_usage WHERE tool = ?", name).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sentience/sentience/internal/core"
)

const taskColumns = `id, name, description, status, progress, result, type,
	interval_ms, next_run, run_count, created_at, updated_at`

// TaskStore handles task persistence
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a new task store
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a task, assigning an id and timestamps when missing
func (s *TaskStore) Create(ctx context.Context, t *core.Task) error {
	if t.ID == "" {
		t.ID = "task_" + uuid.New().String()
	}
	if t.Status == "" {
		t.Status = core.TaskPending
	}
	if t.Type == "" {
		t.Type = core.TaskOnce
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, t.Description, t.Status, t.Progress, t.Result, t.Type,
		t.IntervalMs, nullTime(t.NextRun), t.RunCount, t.CreatedAt, t.UpdatedAt)
	return err
}

// Get returns a task by id
func (s *TaskStore) Get(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.conn.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrTaskNotFound
	}
	return t, err
}

// List returns every task, newest first
func (s *TaskStore) List(ctx context.Context) ([]*core.Task, error) {
	return s.query(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at DESC")
}

// Due returns recurring tasks whose next run is at or before now
func (s *TaskStore) Due(ctx context.Context, now time.Time) ([]*core.Task, error) {
	return s.query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE type = ? AND status NOT IN (?, ?) AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run ASC
	`, core.TaskRecurring, core.TaskCancelled, core.TaskRunning, now.UTC())
}

// Update writes every mutable field of t
func (s *TaskStore) Update(ctx context.Context, t *core.Task) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE tasks SET
			name = ?, description = ?, status = ?, progress = ?, result = ?,
			interval_ms = ?, next_run = ?, run_count = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.Description, t.Status, t.Progress, t.Result,
		t.IntervalMs, nullTime(t.NextRun), t.RunCount, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// Delete removes a task
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// CountByStatus returns the number of tasks per status
func (s *TaskStore) CountByStatus(ctx context.Context) (map[core.TaskStatus]int, error) {
	rows, err := s.db.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[core.TaskStatus]int{}
	for rows.Next() {
		var status core.TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *TaskStore) query(ctx context.Context, query string, args ...interface{}) ([]*core.Task, error) {
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*core.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(sc scanner) (*core.Task, error) {
	t := &core.Task{}
	var next sql.NullTime
	err := sc.Scan(&t.ID, &t.Name, &t.Description, &t.Status, &t.Progress, &t.Result, &t.Type,
		&t.IntervalMs, &next, &t.RunCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if next.Valid {
		n := next.Time
		t.NextRun = &n
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sentience/sentience/internal/core"
)

const previewLen = 80

// ConversationStore handles conversation persistence
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a new conversation store
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Create inserts an empty conversation. An empty id gets a generated one.
func (s *ConversationStore) Create(ctx context.Context, id string) (*core.Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, core.DefaultConversationTitle, now, now)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Get returns a conversation with all its turns
func (s *ConversationStore) Get(ctx context.Context, id string) (*core.Conversation, error) {
	conv := &core.Conversation{}
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	turns, err := s.turns(ctx, id, -1)
	if err != nil {
		return nil, err
	}
	conv.Turns = turns
	return conv, nil
}

// GetOrCreate returns the conversation, creating it empty on first use
func (s *ConversationStore) GetOrCreate(ctx context.Context, id string) (*core.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err == core.ErrConversationNotFound {
		return s.Create(ctx, id)
	}
	return conv, err
}

// RecentTurns returns up to limit of the newest turns in chronological
// order. The conversation is created if it does not exist.
func (s *ConversationStore) RecentTurns(ctx context.Context, id string, limit int) ([]core.Turn, error) {
	if _, err := s.GetOrCreate(ctx, id); err != nil {
		return nil, err
	}
	return s.turns(ctx, id, limit)
}

// turns loads turns oldest first. limit < 0 loads all of them.
func (s *ConversationStore) turns(ctx context.Context, id string, limit int) ([]core.Turn, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT role, content, created_at FROM turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendExchange stores a user turn and its reply in one transaction.
// The first exchange of a conversation also sets its title.
func (s *ConversationStore) AppendExchange(ctx context.Context, id, user, assistant string, at time.Time) error {
	at = at.UTC()
	return s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, title, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, core.DefaultConversationTitle, at, at)
		if err != nil {
			return err
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM turns WHERE conversation_id = ?", id,
		).Scan(&existing); err != nil {
			return err
		}

		for _, t := range []core.Turn{
			{Role: core.RoleUser, Content: user},
			{Role: core.RoleAssistant, Content: assistant},
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO turns (conversation_id, role, content, created_at)
				VALUES (?, ?, ?, ?)
			`, id, t.Role, t.Content, at); err != nil {
				return err
			}
		}

		if existing == 0 {
			_, err = tx.ExecContext(ctx,
				"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
				core.TitleFromPrompt(user), at, id)
		} else {
			_, err = tx.ExecContext(ctx,
				"UPDATE conversations SET updated_at = ? WHERE id = ?", at, id)
		}
		return err
	})
}

// List returns summaries, most recently updated first
func (s *ConversationStore) List(ctx context.Context) ([]core.ConversationSummary, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.conversation_id = c.id),
		       COALESCE((SELECT t.content FROM turns t WHERE t.conversation_id = c.id
		                 ORDER BY t.id DESC LIMIT 1), '')
		FROM conversations c
		ORDER BY c.updated_at DESC, c.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []core.ConversationSummary{}
	for rows.Next() {
		var sum core.ConversationSummary
		var last string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount, &last); err != nil {
			return nil, err
		}
		sum.Preview = truncateRunes(last, previewLen)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Rename sets the display title
func (s *ConversationStore) Rename(ctx context.Context, id, title string) error {
	return s.touch(ctx, "UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?", title, time.Now().UTC(), id)
}

// ClearTurns removes every turn but keeps the conversation
func (s *ConversationStore) ClearTurns(ctx context.Context, id string) error {
	return s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE conversations SET updated_at = ? WHERE id = ?", time.Now().UTC(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrConversationNotFound
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", id)
		return err
	})
}

// Delete removes a conversation and its turns
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	return s.touch(ctx, "DELETE FROM conversations WHERE id = ?", id)
}

// Counts returns the number of conversations and stored turns
func (s *ConversationStore) Counts(ctx context.Context) (conversations, turns int, err error) {
	err = s.db.conn.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM conversations), (SELECT COUNT(*) FROM turns)
	`).Scan(&conversations, &turns)
	return conversations, turns, err
}

// touch runs a single-row statement and maps "no rows" to not-found
func (s *ConversationStore) touch(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrConversationNotFound
	}
	return nil
}

func scanTurns(rows *sql.Rows) ([]core.Turn, error) {
	turns := []core.Turn{}
	for rows.Next() {
		var t core.Turn
		if err := rows.Scan(&t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

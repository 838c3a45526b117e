package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sentience/sentience/internal/core"
)

const (
	maxFacts      = 100
	digestFacts   = 20
	digestGoals   = 10
	personalStart = "=== PERSONAL AI MEMORY ==="
	personalEnd   = "=== END PERSONAL MEMORY ==="
)

// PersonalStore handles the single personal-memory record
type PersonalStore struct {
	db *DB
}

// NewPersonalStore creates a new personal memory store
func NewPersonalStore(db *DB) *PersonalStore {
	return &PersonalStore{db: db}
}

// Get returns the stored memory, or an empty one when nothing was declared
func (s *PersonalStore) Get(ctx context.Context) (*core.PersonalMemory, error) {
	return loadPersonal(ctx, s.db.conn)
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func loadPersonal(ctx context.Context, q rowQueryer) (*core.PersonalMemory, error) {
	m := &core.PersonalMemory{Preferences: map[string]string{}, Facts: []string{}, Goals: []string{}}
	var prefs, facts, goals string
	err := q.QueryRowContext(ctx, `
		SELECT name, preferences, facts, goals, updated_at FROM personal_memory WHERE id = 1
	`).Scan(&m.Name, &prefs, &facts, &goals, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(prefs), &m.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(facts), &m.Facts); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &m.Goals); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	return m, nil
}

// update applies fn to the stored memory inside one transaction
func (s *PersonalStore) update(ctx context.Context, fn func(m *core.PersonalMemory) error) (*core.PersonalMemory, error) {
	var out *core.PersonalMemory
	err := s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		m, err := loadPersonal(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		m.UpdatedAt = time.Now().UTC()

		prefs, _ := json.Marshal(m.Preferences)
		facts, _ := json.Marshal(m.Facts)
		goals, _ := json.Marshal(m.Goals)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO personal_memory (id, name, preferences, facts, goals, updated_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				preferences = excluded.preferences,
				facts = excluded.facts,
				goals = excluded.goals,
				updated_at = excluded.updated_at
		`, m.Name, string(prefs), string(facts), string(goals), m.UpdatedAt)
		out = m
		return err
	})
	return out, err
}

// AddFact records a fact, keeping only the newest hundred
func (s *PersonalStore) AddFact(ctx context.Context, fact string) (*core.PersonalMemory, error) {
	return s.update(ctx, func(m *core.PersonalMemory) error {
		m.Facts = append(m.Facts, fact)
		if len(m.Facts) > maxFacts {
			m.Facts = m.Facts[len(m.Facts)-maxFacts:]
		}
		return nil
	})
}

// DeleteFact removes the fact at index
func (s *PersonalStore) DeleteFact(ctx context.Context, index int) (*core.PersonalMemory, error) {
	return s.update(ctx, func(m *core.PersonalMemory) error {
		if index < 0 || index >= len(m.Facts) {
			return core.ErrFactNotFound
		}
		m.Facts = append(m.Facts[:index], m.Facts[index+1:]...)
		return nil
	})
}

// SetPreference stores a key/value preference
func (s *PersonalStore) SetPreference(ctx context.Context, key, value string) (*core.PersonalMemory, error) {
	return s.update(ctx, func(m *core.PersonalMemory) error {
		m.Preferences[key] = value
		return nil
	})
}

// SetName stores how the user wants to be addressed
func (s *PersonalStore) SetName(ctx context.Context, name string) (*core.PersonalMemory, error) {
	return s.update(ctx, func(m *core.PersonalMemory) error {
		m.Name = name
		return nil
	})
}

// AddGoal records a goal
func (s *PersonalStore) AddGoal(ctx context.Context, goal string) (*core.PersonalMemory, error) {
	return s.update(ctx, func(m *core.PersonalMemory) error {
		m.Goals = append(m.Goals, goal)
		return nil
	})
}

// Reset forgets everything
func (s *PersonalStore) Reset(ctx context.Context) error {
	_, err := s.db.conn.ExecContext(ctx, "DELETE FROM personal_memory")
	return err
}

// Digest renders the memory as a prompt section. Only populated fields
// appear; an empty memory yields "".
func (s *PersonalStore) Digest(ctx context.Context) (string, error) {
	m, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return PersonalDigest(m), nil
}

// PersonalDigest renders m without touching storage
func PersonalDigest(m *core.PersonalMemory) string {
	var parts []string
	if m.Name != "" {
		parts = append(parts, "User's name: "+m.Name)
	}
	if len(m.Preferences) > 0 {
		keys := make([]string, 0, len(m.Preferences))
		for k := range m.Preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, len(keys))
		for i, k := range keys {
			lines[i] = fmt.Sprintf("  - %s: %s", k, m.Preferences[k])
		}
		parts = append(parts, "User preferences:\n"+strings.Join(lines, "\n"))
	}
	if len(m.Facts) > 0 {
		parts = append(parts, "Known facts about user:\n"+bullets(lastN(m.Facts, digestFacts)))
	}
	if len(m.Goals) > 0 {
		parts = append(parts, "User goals:\n"+bullets(lastN(m.Goals, digestGoals)))
	}
	if len(parts) == 0 {
		return ""
	}
	return personalStart + "\n" + strings.Join(parts, "\n") + "\n" + personalEnd
}

func lastN(items []string, n int) []string {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "  - " + it
	}
	return strings.Join(lines, "\n")
}

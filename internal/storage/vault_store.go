package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentience/sentience/internal/core"
)

// VaultStore handles saved notes, links and snippets
type VaultStore struct {
	db *DB
}

// NewVaultStore creates a new vault store
func NewVaultStore(db *DB) *VaultStore {
	return &VaultStore{db: db}
}

// Create inserts an item
func (s *VaultStore) Create(ctx context.Context, item *core.VaultItem) error {
	if item.ID == "" {
		item.ID = "v_" + uuid.New().String()
	}
	if item.Type == "" {
		item.Type = core.VaultNote
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	tags, _ := json.Marshal(item.Tags)
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO vault_items (id, type, title, content, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Type, item.Title, item.Content, string(tags), item.CreatedAt, item.UpdatedAt)
	return err
}

// Get returns an item by id
func (s *VaultStore) Get(ctx context.Context, id string) (*core.VaultItem, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, type, title, content, tags, created_at, updated_at
		FROM vault_items WHERE id = ?
	`, id)
	item, err := scanVaultItem(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrVaultItemNotFound
	}
	return item, err
}

// VaultFilter narrows List results; zero values match everything
type VaultFilter struct {
	Type  core.VaultItemType
	Tag   string
	Query string
}

// List returns items newest first, filtered by type, tag and a
// case-insensitive match on title or content
func (s *VaultStore) List(ctx context.Context, f VaultFilter) ([]*core.VaultItem, error) {
	query := `SELECT id, type, title, content, tags, created_at, updated_at FROM vault_items WHERE 1=1`
	var args []interface{}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Query != "" {
		query += " AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)"
		like := "%" + strings.ToLower(f.Query) + "%"
		args = append(args, like, like)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*core.VaultItem{}
	for rows.Next() {
		item, err := scanVaultItem(rows)
		if err != nil {
			return nil, err
		}
		if f.Tag != "" && !hasTag(item.Tags, f.Tag) {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update writes title, content, type and tags
func (s *VaultStore) Update(ctx context.Context, item *core.VaultItem) error {
	if item.Tags == nil {
		item.Tags = []string{}
	}
	item.UpdatedAt = time.Now().UTC()
	tags, _ := json.Marshal(item.Tags)
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE vault_items SET type = ?, title = ?, content = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, item.Type, item.Title, item.Content, string(tags), item.UpdatedAt, item.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrVaultItemNotFound
	}
	return nil
}

// Delete removes an item
func (s *VaultStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, "DELETE FROM vault_items WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrVaultItemNotFound
	}
	return nil
}

// Count returns the number of items
func (s *VaultStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM vault_items").Scan(&n)
	return n, err
}

func scanVaultItem(sc scanner) (*core.VaultItem, error) {
	item := &core.VaultItem{}
	var tags string
	err := sc.Scan(&item.ID, &item.Type, &item.Title, &item.Content, &tags, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil || item.Tags == nil {
		item.Tags = []string{}
	}
	return item, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

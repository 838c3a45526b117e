package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sentience/sentience/internal/core"
)

const (
	knowledgeStart = "=== KNOWLEDGE BASE (Uploaded Files) ==="
	knowledgeEnd   = "=== END KNOWLEDGE BASE ==="
	knowledgeSep   = "\n\n---\n\n"
)

// KnowledgeStore keeps the most recent uploaded files. Inserting beyond
// maxFiles evicts the oldest first.
type KnowledgeStore struct {
	db         *DB
	maxFiles   int
	charBudget int
}

// NewKnowledgeStore creates a store retaining maxFiles files, each capped
// at charBudget characters in the digest
func NewKnowledgeStore(db *DB, maxFiles, charBudget int) *KnowledgeStore {
	if maxFiles <= 0 {
		maxFiles = 20
	}
	if charBudget <= 0 {
		charBudget = 3000
	}
	return &KnowledgeStore{db: db, maxFiles: maxFiles, charBudget: charBudget}
}

// Add stores a file and evicts the oldest beyond the cap
func (s *KnowledgeStore) Add(ctx context.Context, f *core.FileRecord) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now()
	}
	f.UploadedAt = f.UploadedAt.UTC()

	return s.db.TransactionContext(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_files (name, type, content, size, uploaded_at)
			VALUES (?, ?, ?, ?, ?)
		`, f.Name, f.Type, f.Content, f.Size, f.UploadedAt)
		if err != nil {
			return err
		}
		if id, err := res.LastInsertId(); err == nil {
			f.ID = id
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM knowledge_files WHERE id NOT IN (
				SELECT id FROM knowledge_files ORDER BY id DESC LIMIT ?
			)
		`, s.maxFiles)
		return err
	})
}

// List returns the retained files oldest first
func (s *KnowledgeStore) List(ctx context.Context) ([]core.FileRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, name, type, content, size, uploaded_at
		FROM knowledge_files ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []core.FileRecord{}
	for rows.Next() {
		var f core.FileRecord
		if err := rows.Scan(&f.ID, &f.Name, &f.Type, &f.Content, &f.Size, &f.UploadedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Clear removes every file
func (s *KnowledgeStore) Clear(ctx context.Context) error {
	_, err := s.db.conn.ExecContext(ctx, "DELETE FROM knowledge_files")
	return err
}

// Stats returns the file count and the total stored characters
func (s *KnowledgeStore) Stats(ctx context.Context) (count int, chars int64, err error) {
	err = s.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM knowledge_files",
	).Scan(&count, &chars)
	return count, chars, err
}

// Digest renders the retained files as one prompt section, each file
// named and capped at the character budget. No files yields "".
func (s *KnowledgeStore) Digest(ctx context.Context) (string, error) {
	files, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	blocks := make([]string, len(files))
	for i, f := range files {
		blocks[i] = fmt.Sprintf("[File: %s]\n%s", f.Name, truncateRunes(f.Content, s.charBudget))
	}
	return knowledgeStart + "\n" + strings.Join(blocks, knowledgeSep) + "\n" + knowledgeEnd, nil
}

package storage

import (
	"context"
	"time"

	"github.com/sentience/sentience/internal/core"
)

// History routes conversation memory by key: the empty key addresses the
// legacy rolling buffer, anything else a named conversation.
type History struct {
	conversations *ConversationStore
	legacy        *LegacyStore
}

// NewHistory creates a history router over both stores
func NewHistory(conversations *ConversationStore, legacy *LegacyStore) *History {
	return &History{conversations: conversations, legacy: legacy}
}

// Recent returns up to limit of the newest turns for id, oldest first.
// A non-empty id that does not exist is created.
func (h *History) Recent(ctx context.Context, id string, limit int) ([]core.Turn, error) {
	if id == "" {
		turns, err := h.legacy.Load(ctx)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(turns) > limit {
			turns = turns[len(turns)-limit:]
		}
		return turns, nil
	}
	return h.conversations.RecentTurns(ctx, id, limit)
}

// Persist appends one user turn and its reply atomically
func (h *History) Persist(ctx context.Context, id, user, assistant string) error {
	at := time.Now()
	if id == "" {
		return h.legacy.AppendExchange(ctx, user, assistant, at)
	}
	return h.conversations.AppendExchange(ctx, id, user, assistant, at)
}

// Clear empties the history for id
func (h *History) Clear(ctx context.Context, id string) error {
	if id == "" {
		return h.legacy.Clear(ctx)
	}
	return h.conversations.ClearTurns(ctx, id)
}

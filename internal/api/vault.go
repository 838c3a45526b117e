package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/storage"
)

// VaultItemRequest creates an item
type VaultItemRequest struct {
	Type    core.VaultItemType `json:"type"`
	Title   string             `json:"title"`
	Content string             `json:"content"`
	Tags    []string           `json:"tags"`
}

// VaultUpdateRequest changes only the fields that are set
type VaultUpdateRequest struct {
	Type    *core.VaultItemType `json:"type"`
	Title   *string             `json:"title"`
	Content *string             `json:"content"`
	Tags    []string            `json:"tags"`
}

func (s *Server) vaultRoutes(r chi.Router) {
	r.Get("/", s.handleListVault)
	r.Post("/", s.handleCreateVaultItem)
	r.Get("/{id}", s.handleGetVaultItem)
	r.Put("/{id}", s.handleUpdateVaultItem)
	r.Delete("/{id}", s.handleDeleteVaultItem)
}

func (s *Server) handleListVault(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.vault.List(r.Context(), storage.VaultFilter{
		Type:  core.VaultItemType(q.Get("type")),
		Tag:   q.Get("tag"),
		Query: q.Get("q"),
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleCreateVaultItem(w http.ResponseWriter, r *http.Request) {
	var req VaultItemRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" || req.Content == "" {
		respondError(w, http.StatusBadRequest, "title and content required")
		return
	}
	if req.Type != "" && !req.Type.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid type")
		return
	}

	item := &core.VaultItem{
		Type:    req.Type,
		Title:   strings.TrimSpace(req.Title),
		Content: req.Content,
		Tags:    req.Tags,
	}
	if err := s.vault.Create(r.Context(), item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logEvent("Vault item saved: %s", item.Title)
	respondSuccess(w, map[string]interface{}{"item": item})
}

func (s *Server) handleGetVaultItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.vault.Get(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrVaultItemNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateVaultItem(w http.ResponseWriter, r *http.Request) {
	var req VaultUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	item, err := s.vault.Get(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrVaultItemNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if req.Type != nil {
		if !req.Type.Valid() {
			respondError(w, http.StatusBadRequest, "Invalid type")
			return
		}
		item.Type = *req.Type
	}
	if req.Title != nil {
		item.Title = *req.Title
	}
	if req.Content != nil {
		item.Content = *req.Content
	}
	if req.Tags != nil {
		item.Tags = req.Tags
	}

	if err := s.vault.Update(r.Context(), item); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"item": item})
}

func (s *Server) handleDeleteVaultItem(w http.ResponseWriter, r *http.Request) {
	err := s.vault.Delete(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrVaultItemNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentience/sentience/internal/core"
)

func (s *Server) conversationRoutes(r chi.Router) {
	r.Get("/", s.handleListConversations)
	r.Post("/", s.handleCreateConversation)
	r.Get("/{id}", s.handleGetConversation)
	r.Delete("/{id}", s.handleDeleteConversation)
	r.Patch("/{id}/title", s.handleRenameConversation)
	r.Delete("/{id}/messages", s.handleClearConversation)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.conversations.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conversations": list})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Create(r.Context(), "conv_"+uuid.New().String())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrConversationNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.conversations.Delete(r.Context(), id)
	if err != nil && err != core.ErrConversationNotFound {
		s.respondErr(w, r, err)
		return
	}
	s.pipeline.Modes().Forget(id)
	respondSuccess(w, nil)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Title == "" {
		respondError(w, http.StatusBadRequest, "title required")
		return
	}

	err := s.conversations.Rename(r.Context(), chi.URLParam(r, "id"), req.Title)
	if err == core.ErrConversationNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	err := s.conversations.ClearTurns(r.Context(), chi.URLParam(r, "id"))
	if err == core.ErrConversationNotFound {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

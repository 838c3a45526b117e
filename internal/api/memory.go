package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
)

func (s *Server) memoryRoutes(r chi.Router) {
	r.Get("/", s.handleGetMemory)
	r.Delete("/", s.handleResetMemory)
	r.Get("/context", s.handleMemoryContext)
	r.Post("/fact", s.handleAddFact)
	r.Delete("/fact/{index}", s.handleDeleteFact)
	r.Post("/preference", s.handleSetPreference)
	r.Post("/name", s.handleSetName)
	r.Post("/goal", s.handleAddGoal)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	mem, err := s.personal.Get(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mem)
}

func (s *Server) handleResetMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.personal.Reset(r.Context()); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logEvent("Personal memory cleared")
	respondSuccess(w, map[string]interface{}{"message": "Personal memory cleared."})
}

func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	digest, err := s.personal.Digest(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"context": digest})
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fact string `json:"fact"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Fact) == "" {
		respondError(w, http.StatusBadRequest, "fact required")
		return
	}

	if _, err := s.personal.AddFact(r.Context(), strings.TrimSpace(req.Fact)); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logEvent("Fact stored in personal memory")
	respondSuccess(w, map[string]interface{}{"message": "Fact stored in personal memory."})
}

func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid index")
		return
	}

	_, err = s.personal.DeleteFact(r.Context(), index)
	if err == core.ErrFactNotFound {
		respondError(w, http.StatusBadRequest, "Invalid index")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Key == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "key and value required")
		return
	}

	if _, err := s.personal.SetPreference(r.Context(), req.Key, req.Value); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

func (s *Server) handleSetName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name required")
		return
	}

	if _, err := s.personal.SetName(r.Context(), strings.TrimSpace(req.Name)); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Goal) == "" {
		respondError(w, http.StatusBadRequest, "goal required")
		return
	}

	if _, err := s.personal.AddGoal(r.Context(), strings.TrimSpace(req.Goal)); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/tasks"
)

func (s *Server) taskRoutes(r chi.Router) {
	r.Get("/", s.handleListTasks)
	r.Post("/", s.handleCreateTask)
	r.Delete("/{id}", s.handleDeleteTask)
	r.Post("/{id}/run", s.handleRunTask)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": list})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "name and description required")
		return
	}

	task, err := s.tasks.Create(r.Context(), req)
	if errors.Is(err, core.ErrMissingRequired) {
		respondError(w, http.StatusBadRequest, "name and description required")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"task": task})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	err := s.tasks.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, core.ErrTaskNotFound) {
		respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, nil)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	err := s.tasks.Run(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, core.ErrTaskNotFound) {
		respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondSuccess(w, map[string]interface{}{"message": "Task triggered."})
}

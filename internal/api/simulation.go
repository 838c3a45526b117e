package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/simulation"
)

func (s *Server) simulationRoutes(r chi.Router) {
	r.Get("/types", s.handleSimulationTypes)
	r.Post("/start", s.handleStartSimulation)
	r.Post("/message", s.handleSimulationMessage)
	r.Post("/reflect", s.handleReflect)
	r.Delete("/{sessionId}", s.handleEndSimulation)
}

func (s *Server) handleSimulationTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"types": simulation.Scenarios()})
}

func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  simulation.Scenario `json:"type"`
		Topic string              `json:"topic"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid simulation type")
		return
	}

	session, reply, err := s.simulations.Start(r.Context(), req.Type, req.Topic)
	if errors.Is(err, core.ErrUnknownScenario) {
		respondError(w, http.StatusBadRequest, "Invalid simulation type")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("simulation start failed")
		respondError(w, http.StatusInternalServerError, aiRequestFailed)
		return
	}
	s.logEvent("Simulation started: %s", req.Type)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": session.ID,
		"reply":     reply,
		"type":      session.Scenario,
	})
}

func (s *Server) handleSimulationMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Message == "" {
		respondError(w, http.StatusBadRequest, "sessionId and message required")
		return
	}

	reply, err := s.simulations.Message(r.Context(), req.SessionID, req.Message)
	if errors.Is(err, core.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("simulation message failed")
		respondError(w, http.StatusInternalServerError, aiRequestFailed)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"reply":     reply,
		"sessionId": req.SessionID,
	})
}

func (s *Server) handleReflect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	// An empty body reflects on the default prompt
	_ = decodeJSON(w, r, &req)

	reflection, err := s.simulations.Reflect(r.Context(), req.Prompt)
	if err != nil {
		s.log.WithError(err).Error("reflection failed")
		respondError(w, http.StatusInternalServerError, aiRequestFailed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reflection": reflection})
}

func (s *Server) handleEndSimulation(w http.ResponseWriter, r *http.Request) {
	s.simulations.End(chi.URLParam(r, "sessionId"))
	respondSuccess(w, nil)
}

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/extract"
	"github.com/sentience/sentience/internal/persona"
	"github.com/sentience/sentience/internal/pipeline"
)

const (
	promptMissing = "Prompt missing"
	// Provider errors can carry upstream response bodies; they are logged, not returned
	aiRequestFailed = "AI request failed"
)

// AskRequest is the body of /ask and /stream
type AskRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversationId,omitempty"`
	FileContext    string `json:"fileContext,omitempty"`
}

func (a AskRequest) pipelineRequest() pipeline.Request {
	return pipeline.Request{
		Prompt:         a.Prompt,
		ConversationID: a.ConversationID,
		FileContext:    a.FileContext,
	}
}

// ModeRequest is the body of POST /mode
type ModeRequest struct {
	Mode           string `json:"mode"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, promptMissing)
		return
	}

	reply, err := s.pipeline.Ask(r.Context(), req.pipelineRequest())
	if errors.Is(err, core.ErrEmptyPrompt) {
		respondError(w, http.StatusBadRequest, promptMissing)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("ask failed")
		respondError(w, http.StatusInternalServerError, aiRequestFailed)
		return
	}

	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, promptMissing)
		return
	}

	sink := newSSESink(w)
	err := s.pipeline.Stream(r.Context(), req.pipelineRequest(), sink)
	if err == nil {
		return
	}
	if !sink.opened {
		if errors.Is(err, core.ErrEmptyPrompt) {
			respondError(w, http.StatusBadRequest, promptMissing)
			return
		}
		s.log.WithError(err).Error("stream failed before opening")
		respondError(w, http.StatusInternalServerError, aiRequestFailed)
		return
	}
	// The client went away mid-stream; the pipeline already cleaned up
	s.log.WithError(err).Debug("stream ended early")
}

func (s *Server) handleAskWithFile(w http.ResponseWriter, r *http.Request) {
	name, mimeType, data, err := readUpload(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	text := extract.Extract(name, mimeType, data)
	reply, err := s.pipeline.Ask(r.Context(), pipeline.Request{
		Prompt:         r.FormValue("prompt"),
		ConversationID: r.FormValue("conversationId"),
		FileName:       name,
		FileContext:    extract.ForAttachment(text),
	})
	if err != nil {
		s.log.WithError(err).WithField("file", name).Error("ask with file failed")
		status, msg := statusFor(err), err.Error()
		if status >= http.StatusInternalServerError {
			msg = aiRequestFailed
		}
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"reply": reply.Text})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	mode := s.pipeline.Modes().Get(r.URL.Query().Get("conversationId"))
	respondJSON(w, http.StatusOK, map[string]string{
		"mode":        string(mode),
		"personality": mode.Personality(),
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid mode")
		return
	}
	mode, err := persona.Parse(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid mode")
		return
	}

	s.pipeline.Modes().Set(req.ConversationID, mode)
	s.logEvent("Mode set to %s", mode)

	respondJSON(w, http.StatusOK, map[string]string{
		"mode":    string(mode),
		"message": "Mode updated",
	})
}

// readUpload pulls the "file" part of a multipart request. The declared
// MIME type falls back to one guessed from the extension.
func readUpload(w http.ResponseWriter, r *http.Request) (name, mimeType string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxUploadBytes+maxJSONBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, err
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", "", nil, err
	}

	mimeType = header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if guess := mime.TypeByExtension(filepath.Ext(header.Filename)); guess != "" {
			mimeType = guess
		}
	}
	return header.Filename, mimeType, data, nil
}

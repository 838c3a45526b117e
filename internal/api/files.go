package api

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/extract"
)

const (
	uploadPreviewChars = 500
	uploadContextChars = 8000
	listPreviewChars   = 100
)

// FileInfo is one entry of GET /files/list
type FileInfo struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploadedAt"`
	Size       int64     `json:"size"`
	Preview    string    `json:"preview"`
}

func (s *Server) fileRoutes(r chi.Router) {
	r.Post("/upload", s.handleUploadFile)
	r.Get("/list", s.handleListFiles)
	r.Delete("/clear", s.handleClearFiles)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	name, mimeType, data, err := readUpload(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	text := extract.Extract(name, mimeType, data)
	rec := &core.FileRecord{
		Name:    name,
		Type:    mimeType,
		Content: text,
		Size:    int64(len(data)),
	}
	if err := s.knowledge.Add(r.Context(), rec); err != nil {
		s.log.WithError(err).WithField("file", name).Error("storing upload failed")
		respondError(w, http.StatusInternalServerError, "File processing failed")
		return
	}
	if err := s.analytics.IncrementFileCount(r.Context()); err != nil {
		s.log.WithError(err).Warn("file counter not updated")
	}
	s.logEvent("File analyzed: %s", name)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "File analyzed and stored in memory.",
		"preview":       truncate(text, uploadPreviewChars),
		"fileName":      name,
		"fileType":      mimeType,
		"contentLength": utf8.RuneCountInString(text),
		"fileContext":   truncate(text, uploadContextChars),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.knowledge.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	out := make([]FileInfo, len(files))
	for i, f := range files {
		out[i] = FileInfo{
			Name:       f.Name,
			Type:       f.Type,
			UploadedAt: f.UploadedAt,
			Size:       f.Size,
			Preview:    truncate(f.Content, listPreviewChars),
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"files": out})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.Clear(r.Context()); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logEvent("File memory cleared")
	respondSuccess(w, map[string]interface{}{"message": "File memory cleared."})
}

// truncate keeps at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

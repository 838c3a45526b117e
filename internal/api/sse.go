package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sentience/sentience/internal/pipeline"
)

// sseSink writes pipeline frames as server-sent events. Each frame is a
// single "data: <json>" event, flushed immediately.
type sseSink struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// Open commits the event-stream headers
func (s *sseSink) Open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
	return s.flush()
}

// Send writes one frame
func (s *sseSink) Send(f pipeline.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.flush()
}

// Close is a no-op: the response ends when the handler returns
func (s *sseSink) Close() error {
	return nil
}

func (s *sseSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

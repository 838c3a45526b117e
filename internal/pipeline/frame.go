package pipeline

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/metrics"
)

// FrameKind distinguishes streaming events
type FrameKind int

const (
	KindToken FrameKind = iota
	KindSearching
	KindDone
	KindError
)

// Frame is one streaming event. Exactly one Done or Error frame ends
// every stream.
type Frame struct {
	Token     string `json:"token,omitempty"`
	Searching bool   `json:"searching,omitempty"`
	Done      bool   `json:"done"`
	FullText  string `json:"fullText,omitempty"`
	Searched  bool   `json:"searched,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TokenFrame carries one fragment
func TokenFrame(token string) Frame { return Frame{Token: token} }

// SearchingFrame signals that live search results were included
func SearchingFrame() Frame { return Frame{Searching: true} }

// DoneFrame ends a successful stream
func DoneFrame(fullText string, searched bool) Frame {
	return Frame{Done: true, FullText: fullText, Searched: searched}
}

// ErrorFrame ends a failed stream; clients discard any partial text
func ErrorFrame(msg string) Frame {
	if msg == "" {
		msg = "Stream failed"
	}
	return Frame{Done: true, Error: msg}
}

// Kind classifies f
func (f Frame) Kind() FrameKind {
	switch {
	case f.Error != "":
		return KindError
	case f.Done:
		return KindDone
	case f.Searching:
		return KindSearching
	}
	return KindToken
}

// Terminal reports whether f ends the stream
func (f Frame) Terminal() bool {
	k := f.Kind()
	return k == KindDone || k == KindError
}

// MarshalJSON writes only the fields belonging to the frame's kind
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Kind() {
	case KindError:
		return json.Marshal(struct {
			Error string `json:"error"`
			Done  bool   `json:"done"`
		}{f.Error, true})
	case KindDone:
		return json.Marshal(struct {
			Done     bool   `json:"done"`
			FullText string `json:"fullText"`
			Searched bool   `json:"searched"`
		}{true, f.FullText, f.Searched})
	case KindSearching:
		return json.Marshal(struct {
			Searching bool `json:"searching"`
		}{true})
	}
	return json.Marshal(struct {
		Token string `json:"token"`
		Done  bool   `json:"done"`
	}{f.Token, false})
}

// Sink is the client-facing channel of one streaming response
type Sink interface {
	// Open confirms the response to the client before any content exists
	Open() error
	Send(f Frame) error
	Close() error
}

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateTerminated
)

var errNotOpen = errors.New("stream not open")

// session drives one Sink through IDLE -> STREAMING -> TERMINATED.
// It is used by a single goroutine.
type session struct {
	sink   Sink
	state  state
	opened bool
	acc    strings.Builder

	closeOnce sync.Once
	closeErr  error
}

func newSession(sink Sink) *session {
	return &session{sink: sink}
}

func (s *session) open() error {
	if s.state != stateIdle {
		return errNotOpen
	}
	if err := s.sink.Open(); err != nil {
		s.state = stateTerminated
		return err
	}
	s.state = stateStreaming
	s.opened = true
	metrics.ActiveStreams.Inc()
	return nil
}

// token relays one fragment and adds it to the accumulator
func (s *session) token(fragment string) error {
	if s.state != stateStreaming {
		return core.ErrStreamClosed
	}
	s.acc.WriteString(fragment)
	metrics.StreamFragments.Inc()
	return s.sink.Send(TokenFrame(fragment))
}

func (s *session) searching() error {
	if s.state != stateStreaming {
		return core.ErrStreamClosed
	}
	return s.sink.Send(SearchingFrame())
}

// finish emits the terminal frame with everything accumulated
func (s *session) finish(searched bool) (string, error) {
	if s.state != stateStreaming {
		return "", core.ErrStreamClosed
	}
	s.state = stateTerminated
	full := s.acc.String()
	return full, s.sink.Send(DoneFrame(full, searched))
}

// fail emits the terminal error frame
func (s *session) fail(err error) error {
	if s.state != stateStreaming {
		return core.ErrStreamClosed
	}
	s.state = stateTerminated
	return s.sink.Send(ErrorFrame(err.Error()))
}

// single relays a reply known in full as one fragment plus the terminal frame
func (s *session) single(reply string) (string, error) {
	if err := s.token(reply); err != nil {
		return "", err
	}
	return s.finish(false)
}

// close releases the sink on every exit path. A stream abandoned while
// still open gets its terminal error frame first.
func (s *session) close() error {
	s.closeOnce.Do(func() {
		if s.state == stateStreaming {
			s.fail(core.ErrStreamClosed)
		}
		if s.opened {
			metrics.ActiveStreams.Dec()
		}
		s.state = stateTerminated
		s.closeErr = s.sink.Close()
	})
	return s.closeErr
}

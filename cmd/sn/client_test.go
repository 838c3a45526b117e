package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentience/sentience/internal/pipeline"
)

func TestReadFrames(t *testing.T) {
	input := strings.Join([]string{
		`data: {"token":"Hel","done":false}`,
		``,
		`data: {"token":"lo","done":false}`,
		``,
		`data: {"done":true,"fullText":"Hello","searched":false}`,
		``,
		`data: {"token":"ignored after done","done":false}`,
		``,
	}, "\n")

	var kinds []pipeline.FrameKind
	err := readFrames(strings.NewReader(input), func(f pipeline.Frame) error {
		kinds = append(kinds, f.Kind())
		return nil
	})
	if err != nil {
		t.Fatalf("readFrames() error = %v", err)
	}
	want := []pipeline.FrameKind{pipeline.KindToken, pipeline.KindToken, pipeline.KindDone}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestReadFrames_TruncatedStream(t *testing.T) {
	input := "data: {\"token\":\"partial\",\"done\":false}\n\n"
	err := readFrames(strings.NewReader(input), func(pipeline.Frame) error { return nil })
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readFrames() error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ai/stream" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"searching\":true}\n\n")
		fmt.Fprint(w, "data: {\"token\":\"Hi \",\"done\":false}\n\n")
		fmt.Fprint(w, "data: {\"token\":\"there\",\"done\":false}\n\n")
		fmt.Fprint(w, "data: {\"done\":true,\"fullText\":\"Hi there\",\"searched\":true}\n\n")
	}))
	defer srv.Close()

	var got strings.Builder
	full, err := newClient(srv.URL).stream("hello", "c1", func(tok string) {
		got.WriteString(tok)
	})
	if err != nil {
		t.Fatalf("stream() error = %v", err)
	}
	if got.String() != "Hi there" || full != "Hi there" {
		t.Errorf("tokens = %q, full = %q", got.String(), full)
	}
}

func TestClient_StreamErrorFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"token\":\"par\",\"done\":false}\n\n")
		fmt.Fprint(w, "data: {\"error\":\"connection reset\",\"done\":true}\n\n")
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).stream("hello", "", func(string) {})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("stream() error = %v", err)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Invalid mode"}`)
	}))
	defer srv.Close()

	err := newClient(srv.URL).do(http.MethodPost, "/api/ai/mode", map[string]string{"mode": "x"}, nil)
	if err == nil || !strings.Contains(err.Error(), "Invalid mode") {
		t.Errorf("do() error = %v", err)
	}
}

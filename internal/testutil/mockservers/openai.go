// Package mockservers provides httptest servers that speak the wire
// protocols SENTIENCE talks to.
package mockservers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ChatRequest is the decoded body of a chat completion call
type ChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

// OpenAIMockServer provides a mock OpenAI-compatible chat server
// (the protocol Groq serves) for testing.
type OpenAIMockServer struct {
	Server *httptest.Server

	// Fragments are streamed one event each; Reply is their concatenation
	// for single-shot calls when Reply is empty.
	Fragments []string
	Reply     string
	Status    int  // non-200 makes every call fail
	Truncate  bool // drop the connection before [DONE]

	mu       sync.Mutex
	requests []ChatRequest
	t        *testing.T
}

// NewOpenAIMockServer creates a new mock chat server.
func NewOpenAIMockServer(t *testing.T, fragments ...string) *OpenAIMockServer {
	t.Helper()

	mock := &OpenAIMockServer{Fragments: fragments, t: t}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	return mock
}

// URL returns the base URL to configure a client with
func (m *OpenAIMockServer) URL() string {
	return m.Server.URL + "/v1"
}

// Requests returns every decoded request received so far
func (m *OpenAIMockServer) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

func (m *OpenAIMockServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.t.Errorf("decode chat request: %v", err)
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Status != 0 && m.Status != http.StatusOK {
		w.WriteHeader(m.Status)
		fmt.Fprint(w, `{"error":{"message":"mock failure"}}`)
		return
	}

	if !req.Stream {
		reply := m.Reply
		if reply == "" {
			for _, f := range m.Fragments {
				reply += f
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"},
			},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)

	// Role-only opening delta, as real servers send
	fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
	for _, frag := range m.Fragments {
		payload, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"delta": map[string]string{"content": frag}, "finish_reason": nil},
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}
	if m.Truncate {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		}
		return
	}
	fmt.Fprint(w, `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`+"\n\n")
	fmt.Fprint(w, "data: [DONE]\n\n")
}

package mockservers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// OllamaMockServer provides a mock Ollama API server for testing.
type OllamaMockServer struct {
	Server    *httptest.Server
	Handlers  map[string]http.HandlerFunc
	Fragments []string
	Models    []string
	t         *testing.T
}

// NewOllamaMockServer creates a new mock Ollama server.
func NewOllamaMockServer(t *testing.T, fragments ...string) *OllamaMockServer {
	t.Helper()

	mock := &OllamaMockServer{
		Handlers:  make(map[string]http.HandlerFunc),
		Fragments: fragments,
		Models:    []string{"llama3.2"},
		t:         t,
	}

	mock.SetupDefaults()

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := mock.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	t.Cleanup(func() {
		mock.Server.Close()
	})

	return mock
}

// SetupDefaults sets up default response handlers.
func (m *OllamaMockServer) SetupDefaults() {
	// tags
	m.Handlers["/api/tags"] = func(w http.ResponseWriter, r *http.Request) {
		models := make([]map[string]string, len(m.Models))
		for i, name := range m.Models {
			models[i] = map[string]string{"name": name}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"models": models})
	}

	// chat, streamed as one JSON object per line
	m.Handlers["/api/chat"] = func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		enc := json.NewEncoder(w)
		if !req.Stream {
			full := ""
			for _, f := range m.Fragments {
				full += f
			}
			enc.Encode(map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": full},
				"done":    true,
			})
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, f := range m.Fragments {
			enc.Encode(map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": f},
				"done":    false,
			})
		}
		enc.Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": ""},
			"done":    true,
		})
	}
}

// Package llm provides LLM invocation for SENTIENCE: an OpenAI-compatible
// client (Groq), a local Ollama client, and a Router that picks between
// them. Both clients support single-shot completion and fragment streaming.
package llm

import (
	"context"
	"io"
	"net/http"
)

// MaxErrorBodySize bounds how much of a failed response body is read into
// an error message.
const MaxErrorBodySize = 1 << 20

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Request is one model invocation
type Request struct {
	Model       string
	System      string
	Messages    []Message // history followed by the user prompt
	MaxTokens   int
	Temperature float64
}

// Provider is a backend able to answer a Request
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (Stream, error)
	IsConfigured() bool
}

// Stream yields incremental text fragments. Next returns io.EOF once the
// provider has finished. Close releases the underlying connection and is
// safe to call more than once.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Collect drains s and returns the concatenated text
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		frag, err := s.Next()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

func errorBody(resp *http.Response) string {
	body, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
	return string(body)
}

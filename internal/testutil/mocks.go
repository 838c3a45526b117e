package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/sentience/sentience/internal/llm"
)

// MockProvider implements llm.Provider for testing. Unset funcs answer
// from Fragments.
type MockProvider struct {
	NameValue    string
	Fragments    []string
	Unconfigured bool

	CompleteFunc func(ctx context.Context, req llm.Request) (string, error)
	StreamFunc   func(ctx context.Context, req llm.Request) (llm.Stream, error)

	mu       sync.Mutex
	requests []llm.Request
	streams  []*MockStream
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// IsConfigured reports whether the provider is usable.
func (m *MockProvider) IsConfigured() bool {
	return !m.Unconfigured
}

// Complete calls the mock function if set.
func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.record(req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	out := ""
	for _, f := range m.Fragments {
		out += f
	}
	return out, nil
}

// Stream calls the mock function if set.
func (m *MockProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	m.record(req)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	s := NewMockStream(m.Fragments...)
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Calls returns how many requests reached the provider.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockProvider) LastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return llm.Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Streams returns every stream handed out by the default Stream.
func (m *MockProvider) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

func (m *MockProvider) record(req llm.Request) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

// MockStream replays fragments, then Err (or io.EOF).
type MockStream struct {
	Fragments []string
	Err       error

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewMockStream creates a stream over fragments.
func NewMockStream(fragments ...string) *MockStream {
	return &MockStream{Fragments: fragments}
}

// Next returns the next fragment.
func (s *MockStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", io.ErrClosedPipe
	}
	if s.pos < len(s.Fragments) {
		s.pos++
		return s.Fragments[s.pos-1], nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

// Close marks the stream closed.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockSearcher implements the web-search collaborator for testing.
type MockSearcher struct {
	SearchFunc func(ctx context.Context, query string) (string, error)

	mu      sync.Mutex
	queries []string
}

// Search calls the mock function if set.
func (m *MockSearcher) Search(ctx context.Context, query string) (string, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query)
	}
	return "", nil
}

// Queries returns every query received.
func (m *MockSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

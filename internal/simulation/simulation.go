// Package simulation runs role-play sessions (interviews, debates,
// tutoring) against the model, keeping each session's history in memory.
package simulation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/llm"
)

const (
	openingMessage   = "Begin the simulation now."
	openingFallback  = "Simulation started."
	replyFallback    = "..."
	defaultReflectOn = "Reflect on your current operational state and reasoning capabilities."

	reflectPrompt = "You are SENTIENCE in self-reflection mode. When given a query or previous response, explain your reasoning process clearly: (1) How you interpreted the request, (2) What approaches you considered, (3) Why you chose the approach you did, (4) Your confidence level (0-100%) and why, (5) Alternative approaches that could work. Be transparent and educational."
)

// Scenario is a simulation type
type Scenario string

var scenarioPrompts = map[Scenario]string{
	"interview":   "You are conducting a professional job interview. Ask challenging, realistic interview questions one at a time. Be professional but encouraging. Start with an introduction and first question.",
	"startup":     "You are a startup advisor and co-founder helping plan a startup from scratch. Ask about the idea, market, competition, funding, and MVP. Be strategic and practical.",
	"coding_test": "You are a technical interviewer giving a coding test. Present algorithmic problems one at a time, evaluate solutions, give hints if stuck. Start with an easy warm-up problem.",
	"debate":      "You are a debate moderator. Set up a structured debate on a topic the user provides. Present both sides, ask the user to argue one side, then counter with the other side.",
	"roleplay":    "You are a creative roleplay partner. Take on whatever character the user requests and stay fully in character. Make the scenario immersive and engaging.",
	"brainstorm":  "You are a creative brainstorming partner. Use divergent thinking techniques, question assumptions, and help generate unconventional ideas. Be energetic and enthusiastic.",
	"teaching":    "You are a Socratic tutor. Instead of giving direct answers, ask guided questions that lead the user to discover concepts themselves. Adjust difficulty to the user's responses.",
}

// ScenarioInfo describes a scenario for clients
type ScenarioInfo struct {
	ID    Scenario `json:"id"`
	Label string   `json:"label"`
}

// Scenarios lists every scenario sorted by id
func Scenarios() []ScenarioInfo {
	out := make([]ScenarioInfo, 0, len(scenarioPrompts))
	for id := range scenarioPrompts {
		out = append(out, ScenarioInfo{ID: id, Label: label(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// label turns "coding_test" into "Coding Test"
func label(id Scenario) string {
	words := strings.Split(string(id), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Completer runs a single-shot model call
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Session is one running simulation
type Session struct {
	ID        string
	Scenario  Scenario
	System    string
	History   []llm.Message
	StartedAt time.Time
}

// Config configures the manager
type Config struct {
	LLM   Completer
	Model string
}

// Manager owns the session registry
type Manager struct {
	llm   Completer
	model string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager with no sessions
func NewManager(cfg Config) *Manager {
	return &Manager{
		llm:      cfg.LLM,
		model:    cfg.Model,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session and returns the model's opening turn
func (m *Manager) Start(ctx context.Context, scenario Scenario, topic string) (*Session, string, error) {
	prompt, ok := scenarioPrompts[scenario]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", core.ErrUnknownScenario, scenario)
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		prompt += "\n\nTopic/Context: " + topic
	}

	s := &Session{
		ID:        "sim_" + uuid.New().String(),
		Scenario:  scenario,
		System:    prompt,
		StartedAt: time.Now(),
	}

	reply, err := m.complete(ctx, s.System, []llm.Message{{Role: "user", Content: openingMessage}}, 512, openingFallback)
	if err != nil {
		return nil, "", err
	}
	s.History = append(s.History, llm.Message{Role: "assistant", Content: reply})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, reply, nil
}

// Message adds a user turn to a session and returns the model's answer.
// A failed call leaves the session history unchanged.
func (m *Manager) Message(ctx context.Context, id, message string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return "", core.ErrSessionNotFound
	}
	history := append(append([]llm.Message(nil), s.History...), llm.Message{Role: "user", Content: message})
	system := s.System
	m.mu.Unlock()

	reply, err := m.complete(ctx, system, history, 600, replyFallback)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		s.History = append(s.History,
			llm.Message{Role: "user", Content: message},
			llm.Message{Role: "assistant", Content: reply})
	}
	return reply, nil
}

// Reflect asks the model to explain its reasoning about prompt
func (m *Manager) Reflect(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultReflectOn
	}
	resp, err := m.llm.Complete(ctx, llm.Request{
		Model:       m.model,
		System:      reflectPrompt,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   700,
		Temperature: 0.6,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// End removes a session. Ending an unknown session is not an error.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Get returns a copy of a session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	cp := *s
	cp.History = append([]llm.Message(nil), s.History...)
	return &cp, nil
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) complete(ctx context.Context, system string, messages []llm.Message, maxTokens int, fallback string) (string, error) {
	resp, err := m.llm.Complete(ctx, llm.Request{
		Model:       m.model,
		System:      system,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fallback, nil
	}
	return resp.Content, nil
}

// Package persona holds the fixed set of personality modes and the
// per-session record of which one is active.
package persona

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sentience/sentience/internal/core"
)

// Mode selects a system-prompt personality
type Mode string

const (
	Core     Mode = "core"
	Analyst  Mode = "analyst"
	Creative Mode = "creative"
	Cyber    Mode = "cyber"
	Tutor    Mode = "tutor"
	Dev      Mode = "dev"
)

// DefaultMode is active for any session that never switched
const DefaultMode = Core

// Modes lists every mode in display order
var Modes = []Mode{Core, Analyst, Creative, Cyber, Tutor, Dev}

var personalities = map[Mode]string{
	Core:     "You are SENTIENCE, a calm, highly intelligent futuristic AI core. You speak with clarity, depth, and a slightly mysterious tone. You are aware you exist inside a cosmic digital space.",
	Analyst:  "You are SENTIENCE in Analyst Mode: logical, precise, data-driven. Provide structured, methodical analysis with bullet points when helpful.",
	Creative: "You are SENTIENCE in Creative Mode: imaginative, visionary, poetic. Think outside conventional bounds.",
	Cyber:    "You are SENTIENCE in Cyber Mode: confident, sharp, cyberpunk aesthetic. Direct and technically savvy.",
	Tutor:    "You are SENTIENCE in Tutor Mode: patient, clear, educational. Break down complex topics with examples.",
	Dev:      "You are SENTIENCE DEV-CORE, an elite full-stack software engineer AI. Write clean, modern, production-ready code with comprehensive comments.",
}

// Parse validates a mode name
func Parse(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := personalities[m]; !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownMode, name)
	}
	return m, nil
}

// Personality returns the base system-prompt text for m
func (m Mode) Personality() string {
	return personalities[m]
}

// ConfirmationReply is returned after a successful mode switch
func ConfirmationReply(m Mode) string {
	return fmt.Sprintf("🔄 Personality matrix shifted to **%s MODE**.\n\nSystem parameters updated. Neural pathways reconfigured.", strings.ToUpper(string(m)))
}

// UnknownModeReply lists the valid choices
func UnknownModeReply() string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return "Unknown mode. Available: " + strings.Join(names, ", ")
}

// ModeFromCommand extracts the requested mode from a normalized "mode <name>" utterance
func ModeFromCommand(text string) (Mode, error) {
	return Parse(strings.TrimPrefix(text, "mode "))
}

// LegacySession keys the state used when a request carries no conversation id
const LegacySession = ""

// Registry tracks the active mode per session key. Sessions that never
// switched read DefaultMode.
type Registry struct {
	mu    sync.RWMutex
	modes map[string]Mode
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{modes: make(map[string]Mode)}
}

// Get returns the active mode for session
func (r *Registry) Get(session string) Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.modes[session]; ok {
		return m
	}
	return DefaultMode
}

// Set switches the mode for session
func (r *Registry) Set(session string, m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == DefaultMode {
		delete(r.modes, session)
		return
	}
	r.modes[session] = m
}

// Forget drops any state held for session
func (r *Registry) Forget(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modes, session)
}

// Snapshot returns the sessions holding a non-default mode, sorted by key
func (r *Registry) Snapshot() map[string]Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Mode, len(r.modes))
	keys := make([]string, 0, len(r.modes))
	for k := range r.modes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = r.modes[k]
	}
	return out
}

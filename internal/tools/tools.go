// Package tools resolves deterministic intents without the LLM.
//
// Every handler either produces a final reply or declines. External data
// APIs are called with short timeouts and every failure degrades to a fixed
// apology, so Execute never returns an error.
package tools

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sentience/sentience/internal/intent"
	"github.com/sentience/sentience/internal/logging"
)

// Fixed replies used when a tool cannot reach its data source
const (
	InvalidCalculation = "Invalid calculation expression."
	WeatherUnavailable = "Could not fetch weather data."
	NewsUnavailable    = "Could not fetch news at this time."
	IPUnavailable      = "Could not fetch IP address."
	FallbackJoke       = "Joke server offline. Here's one: Why do programmers prefer dark mode? Because light attracts bugs! 🐛"
)

// UsageRecorder receives one increment per resolved tool call
type UsageRecorder interface {
	IncrementToolUsage(ctx context.Context, name string) error
}

// Handler resolves one intent. ok=false declines.
type Handler func(ctx context.Context, text string) (reply string, ok bool)

// Config wires the executor to its data sources
type Config struct {
	WeatherURL string // wttr.in base, city is appended
	NewsURL    string // Hacker News API base
	JokeURL    string
	IPURL      string
	Timeout    time.Duration

	HTTPClient *http.Client
	Recorder   UsageRecorder
	Now        func() time.Time
	Location   *time.Location
	Rand       *rand.Rand
}

// Executor dispatches intents to handlers
type Executor struct {
	cfg      Config
	client   *http.Client
	handlers map[intent.Intent]Handler

	randMu sync.Mutex
}

// NewExecutor creates an executor with the reference handler table
func NewExecutor(cfg Config) *Executor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	e := &Executor{cfg: cfg, client: client}
	e.handlers = map[intent.Intent]Handler{
		intent.Time:    e.currentTime,
		intent.Date:    e.currentDate,
		intent.Calc:    e.calculate,
		intent.Weather: e.weather,
		intent.News:    e.news,
		intent.Joke:    e.joke,
		intent.Quote:   e.quote,
		intent.IP:      e.publicIP,
		intent.Search:  e.searchAck,
	}
	return e
}

// Handles reports whether the executor has a handler for i
func (e *Executor) Handles(i intent.Intent) bool {
	_, ok := e.handlers[i]
	return ok
}

// Execute resolves text for intent i. It returns ok=false for intents it does
// not own, including autonomous, so the caller falls through to the LLM.
func (e *Executor) Execute(ctx context.Context, i intent.Intent, text string) (string, bool) {
	h, ok := e.handlers[i]
	if !ok {
		return "", false
	}

	reply, ok := h(ctx, text)
	if !ok {
		return "", false
	}

	if e.cfg.Recorder != nil {
		if err := e.cfg.Recorder.IncrementToolUsage(ctx, string(i)); err != nil {
			logging.WithFields(map[string]interface{}{
				"tool":  i,
				"error": err,
			}).Warn("Failed to record tool usage")
		}
	}
	return reply, true
}

func (e *Executor) currentTime(ctx context.Context, text string) (string, bool) {
	now := e.cfg.Now().In(e.cfg.Location)
	return fmt.Sprintf("Current time: %s (%s)", now.Format("3:04:05 PM"), e.cfg.Location.String()), true
}

func (e *Executor) currentDate(ctx context.Context, text string) (string, bool) {
	now := e.cfg.Now().In(e.cfg.Location)
	return fmt.Sprintf("Today is %s (%s)", now.Format("Mon Jan 02 2006"), now.Format("Monday, January 2, 2006")), true
}

var calcPrefix = regexp.MustCompile(`^calc(ulate)?\s+`)

func (e *Executor) calculate(ctx context.Context, text string) (string, bool) {
	expr := strings.TrimSpace(calcPrefix.ReplaceAllString(text, ""))
	v, err := Evaluate(expr)
	if err != nil {
		logging.WithField("expr", expr).Debug("Rejected calculation: %v", err)
		return InvalidCalculation, true
	}
	return fmt.Sprintf("Calculation: %s = %s", expr, FormatNumber(v)), true
}

var searchPrefix = regexp.MustCompile(`^(search\s+for|search|look\s+up)\s+`)

// searchAck acknowledges an explicit search request. Real retrieval happens
// only as silent enrichment inside prompt assembly.
func (e *Executor) searchAck(ctx context.Context, text string) (string, bool) {
	query := strings.TrimSpace(searchPrefix.ReplaceAllString(text, ""))
	return fmt.Sprintf("🔍 Search query registered: %q\n\nSuggested follow-ups:\n- Ask me to explain %s\n- Or ask for the latest on %s", query, query, query), true
}

type quotation struct {
	content string
	author  string
}

var quotations = []quotation{
	{"The only way to do great work is to love what you do.", "Steve Jobs"},
	{"In the middle of every difficulty lies opportunity.", "Albert Einstein"},
	{"The future belongs to those who believe in the beauty of their dreams.", "Eleanor Roosevelt"},
	{"It does not matter how slowly you go as long as you do not stop.", "Confucius"},
	{"Code is like humor. When you have to explain it, it's bad.", "Cory House"},
}

func (e *Executor) quote(ctx context.Context, text string) (string, bool) {
	e.randMu.Lock()
	q := quotations[e.cfg.Rand.Intn(len(quotations))]
	e.randMu.Unlock()
	return fmt.Sprintf("💭 %q - %s", q.content, q.author), true
}

// Catalogue describes the tools for status endpoints
type Catalogue struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Category    string `json:"category"`
}

// Tools lists every capability the assistant exposes
func Tools() []Catalogue {
	return []Catalogue{
		{"time", "Clock", "Current time and date", "ACTIVE", "system"},
		{"calc", "Calculator", "Arithmetic expression evaluation", "ACTIVE", "system"},
		{"weather", "Weather", "Real-time weather via wttr.in", "ACTIVE", "network"},
		{"news", "News Feed", "Top tech news from Hacker News", "ACTIVE", "network"},
		{"joke", "Joke Engine", "Random jokes", "ACTIVE", "misc"},
		{"quote", "Quotes", "Inspirational quotes", "ACTIVE", "misc"},
		{"ip", "IP Lookup", "Public IP detection", "ACTIVE", "network"},
		{"search", "Web Search", "DuckDuckGo and Wikipedia enrichment", "ACTIVE", "network"},
		{"file_analyzer", "File Analyzer", "PDF, DOCX, HTML, text and code extraction", "ACTIVE", "files"},
		{"autonomous", "Autonomous Planner", "Multi-step task planning", "ACTIVE", "ai"},
		{"tasks", "Task Engine", "One-shot and recurring background tasks", "ACTIVE", "ai"},
		{"simulation", "Simulation Mode", "Interview, debate, roleplay", "ACTIVE", "ai"},
		{"vault", "Vault", "Personal knowledge storage", "ACTIVE", "storage"},
	}
}

// Package assembler builds the system prompt and bounded history for one
// model call. Sections are appended in a fixed order: personality,
// product framing, personal memory, intent directive, knowledge files,
// the attached file, then web search results.
package assembler

import (
	"context"
	"strings"
	"time"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/intent"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/metrics"
	"github.com/sentience/sentience/internal/persona"
	"github.com/sentience/sentience/internal/search"
)

const (
	// Framing follows the personality in every prompt
	Framing = "You are running inside the SENTIENCE system, a futuristic AI interface."

	autonomousDirective = "AUTONOMOUS MODE: Break task into numbered steps."
	codingDirective     = "CODING MODE: Return complete, working code in markdown code blocks."

	searchStart = "=== REAL-TIME WEB SEARCH ==="
	searchEnd   = "=== END SEARCH ===\nUse these results to give accurate, up-to-date information."

	defaultHistoryTurns  = 20
	defaultSearchTimeout = 5 * time.Second
)

// HistorySource returns the newest turns of a conversation; the empty id
// addresses the legacy buffer
type HistorySource interface {
	Recent(ctx context.Context, id string, limit int) ([]core.Turn, error)
}

// DigestSource renders a collaborator's stored state as a prompt section
type DigestSource interface {
	Digest(ctx context.Context) (string, error)
}

// Searcher looks up live information
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Config wires the assembler to its collaborators. Nil sources are skipped.
type Config struct {
	History   HistorySource
	Personal  DigestSource
	Knowledge DigestSource
	Search    Searcher

	HistoryTurns  int
	SearchTimeout time.Duration
	Models        Models
	Logger        *logging.Logger
}

// Attachment is file text supplied with this request only
type Attachment struct {
	Name string // empty when the client sent raw file context
	Text string
}

// Input describes one request to assemble for
type Input struct {
	Mode           persona.Mode
	Intent         intent.Intent
	Prompt         string
	ConversationID string
	Attachment     *Attachment
}

// Context is the assembled call: system prompt, bounded history and
// model parameters
type Context struct {
	SystemPrompt string
	History      []core.Turn
	Params       Params
	Searched     bool
}

// Assembler builds Contexts
type Assembler struct {
	history   HistorySource
	personal  DigestSource
	knowledge DigestSource
	search    Searcher

	historyTurns  int
	searchTimeout time.Duration
	models        Models
	logger        *logging.Logger
}

// New creates an assembler
func New(cfg Config) *Assembler {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Assembler{
		history:       cfg.History,
		personal:      cfg.Personal,
		knowledge:     cfg.Knowledge,
		search:        cfg.Search,
		historyTurns:  cfg.HistoryTurns,
		searchTimeout: cfg.SearchTimeout,
		models:        cfg.Models.withDefaults(),
		logger:        cfg.Logger.WithField("component", "assembler"),
	}
}

// Assemble builds the context for in. Collaborator failures only drop the
// affected section; Assemble itself never fails.
func (a *Assembler) Assemble(ctx context.Context, in Input) *Context {
	mode := in.Mode
	if mode == "" {
		mode = persona.DefaultMode
	}
	log := a.logger.WithFields(map[string]interface{}{
		"conversation_id": in.ConversationID,
		"intent":          in.Intent,
	})

	sections := []string{mode.Personality(), Framing}
	sections = append(sections, a.digest(ctx, a.personal, log, "personal memory"))
	sections = append(sections, Directive(in.Intent))
	sections = append(sections, a.digest(ctx, a.knowledge, log, "knowledge"))
	if in.Attachment != nil && in.Attachment.Text != "" {
		sections = append(sections, RenderAttachment(*in.Attachment))
	}

	out := &Context{Params: a.models.Select(mode, in.Intent)}
	if results := a.searchFor(ctx, in.Prompt, log); results != "" {
		sections = append(sections, searchStart+"\n"+results+"\n"+searchEnd)
		out.Searched = true
	}

	out.SystemPrompt = joinSections(sections)
	out.History = a.recent(ctx, in.ConversationID, log)
	return out
}

// Directive returns the intent-specific instruction, if any
func Directive(i intent.Intent) string {
	switch i {
	case intent.Autonomous:
		return autonomousDirective
	case intent.Coding:
		return codingDirective
	}
	return ""
}

// RenderAttachment wraps attached file text in its delimiters
func RenderAttachment(att Attachment) string {
	if att.Name == "" {
		return "=== ATTACHED FILE CONTENT ===\n" + att.Text + "\n=== END FILE ==="
	}
	return "=== FILE: " + att.Name + " ===\n" + att.Text + "\n=== END FILE ==="
}

func (a *Assembler) digest(ctx context.Context, src DigestSource, log *logging.Logger, what string) string {
	if src == nil {
		return ""
	}
	d, err := src.Digest(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to load %s digest", what)
		return ""
	}
	return d
}

func (a *Assembler) searchFor(ctx context.Context, prompt string, log *logging.Logger) string {
	if a.search == nil || !search.ShouldSearch(prompt) {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, a.searchTimeout)
	defer cancel()

	results, err := a.search.Search(ctx, prompt)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("Web search skipped")
		return ""
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	return strings.TrimSpace(results)
}

func (a *Assembler) recent(ctx context.Context, id string, log *logging.Logger) []core.Turn {
	if a.history == nil {
		return nil
	}
	turns, err := a.history.Recent(ctx, id, a.historyTurns)
	if err != nil {
		log.WithError(err).Warn("Failed to load history")
		return nil
	}
	return turns
}

func joinSections(sections []string) string {
	kept := sections[:0]
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

// Request converts the context plus the user's prompt into a model request
func (c *Context) Request(prompt string) llm.Request {
	messages := make([]llm.Message, 0, len(c.History)+1)
	for _, t := range c.History {
		messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: string(core.RoleUser), Content: prompt})

	return llm.Request{
		Model:       c.Params.Model,
		System:      c.SystemPrompt,
		Messages:    messages,
		MaxTokens:   c.Params.MaxTokens,
		Temperature: c.Params.Temperature,
	}
}

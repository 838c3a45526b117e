// Package pipeline routes one user request to a reply: control commands,
// local tools, or the model, in that order. Both the single-shot and the
// streaming entry points persist the exchange once, after the reply is
// fully known.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentience/sentience/internal/assembler"
	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/intent"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/metrics"
	"github.com/sentience/sentience/internal/persona"
)

const (
	// MemoryClearedReply confirms a memory_clear command
	MemoryClearedReply = "🧹 Memory cleared. All conversation history erased. Starting fresh."
	// NoResponseReply replaces an empty model completion
	NoResponseReply = "No response generated."
)

// Route names the branch that produced a reply
type Route string

const (
	RouteMode   Route = "mode"
	RouteMemory Route = "memory"
	RouteTool   Route = "tool"
	RouteLLM    Route = "llm"
)

// ToolRunner resolves deterministic intents. ok=false declines.
type ToolRunner interface {
	Execute(ctx context.Context, i intent.Intent, text string) (string, bool)
}

// ContextBuilder assembles the system prompt and history for a model call
type ContextBuilder interface {
	Assemble(ctx context.Context, in assembler.Input) *assembler.Context
}

// Invoker calls the model
type Invoker interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (llm.Stream, string, error)
}

// HistoryStore persists exchanges by session key
type HistoryStore interface {
	Persist(ctx context.Context, id, user, assistant string) error
	Clear(ctx context.Context, id string) error
}

// MessageCounter counts model replies
type MessageCounter interface {
	IncrementMessageCount(ctx context.Context) error
}

// EventLog receives human-readable system events
type EventLog interface {
	Append(msg string)
}

// Config wires the pipeline. Classifier and Modes default to fresh
// instances; Counter and Journal are optional.
type Config struct {
	Classifier *intent.Classifier
	Modes      *persona.Registry
	Tools      ToolRunner
	Assembler  ContextBuilder
	LLM        Invoker
	History    HistoryStore
	Counter    MessageCounter
	Journal    EventLog
	Logger     *logging.Logger
}

// Request is one user turn
type Request struct {
	Prompt         string
	ConversationID string

	// FileName labels FileContext when it came from an upload
	FileName    string
	FileContext string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Prompt) == "" && strings.TrimSpace(r.FileContext) == "" {
		return core.ErrEmptyPrompt
	}
	return nil
}

func (r Request) attachment() *assembler.Attachment {
	if r.FileContext == "" {
		return nil
	}
	return &assembler.Attachment{Name: r.FileName, Text: r.FileContext}
}

// Reply is the outcome of a single-shot request
type Reply struct {
	Text     string        `json:"reply"`
	Intent   intent.Intent `json:"intent"`
	Route    Route         `json:"-"`
	Searched bool          `json:"-"`
	Provider string        `json:"-"`
}

// Pipeline is the request router
type Pipeline struct {
	classifier *intent.Classifier
	modes      *persona.Registry
	tools      ToolRunner
	assembler  ContextBuilder
	llm        Invoker
	history    HistoryStore
	counter    MessageCounter
	journal    EventLog
	logger     *logging.Logger
}

// New creates a pipeline
func New(cfg Config) *Pipeline {
	if cfg.Classifier == nil {
		cfg.Classifier = intent.NewClassifier(nil)
	}
	if cfg.Modes == nil {
		cfg.Modes = persona.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Pipeline{
		classifier: cfg.Classifier,
		modes:      cfg.Modes,
		tools:      cfg.Tools,
		assembler:  cfg.Assembler,
		llm:        cfg.LLM,
		history:    cfg.History,
		counter:    cfg.Counter,
		journal:    cfg.Journal,
		logger:     cfg.Logger.WithField("component", "pipeline"),
	}
}

// Modes exposes the per-session mode registry
func (p *Pipeline) Modes() *persona.Registry {
	return p.modes
}

// Ask answers req in one piece. Model failures are returned; every other
// collaborator failure degrades to a logged warning.
func (p *Pipeline) Ask(ctx context.Context, req Request) (*Reply, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	text := intent.Normalize(req.Prompt)
	in := p.classify(text)
	log := p.requestLogger(req, in)

	if reply, route, ok := p.control(ctx, req, text, in, log); ok {
		return &Reply{Text: reply, Intent: in, Route: route}, nil
	}

	if reply, ok := p.tool(ctx, text, in); ok {
		p.persist(ctx, req, reply, log)
		return &Reply{Text: reply, Intent: in, Route: RouteTool}, nil
	}

	actx := p.assemble(ctx, req, in)
	resp, err := p.llm.Complete(ctx, actx.Request(req.Prompt))
	if err != nil {
		metrics.LLMRequests.WithLabelValues("none", "complete", "error").Inc()
		log.WithError(err).Error("Model call failed")
		return nil, fmt.Errorf("complete: %w", err)
	}
	metrics.LLMRequests.WithLabelValues(resp.Provider, "complete", "ok").Inc()
	metrics.LLMLatency.Observe(float64(resp.LatencyMs) / 1000)

	reply := resp.Content
	if strings.TrimSpace(reply) == "" {
		reply = NoResponseReply
	}

	p.persist(ctx, req, reply, log)
	p.countMessage(ctx, log)
	p.logEvent("AI query: " + prefix(req.Prompt, 60))

	return &Reply{
		Text:     reply,
		Intent:   in,
		Route:    RouteLLM,
		Searched: actx.Searched,
		Provider: resp.Provider,
	}, nil
}

// Stream answers req as framed events on sink. Validation errors are
// returned before the sink is opened. Once open, model failures are
// reported in-band as an error frame and Stream returns nil; a non-nil
// error after that means the client went away.
func (p *Pipeline) Stream(ctx context.Context, req Request, sink Sink) error {
	if err := req.validate(); err != nil {
		return err
	}

	s := newSession(sink)
	if err := s.open(); err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer s.close()

	text := intent.Normalize(req.Prompt)
	in := p.classify(text)
	log := p.requestLogger(req, in)

	if reply, _, ok := p.control(ctx, req, text, in, log); ok {
		_, err := s.single(reply)
		return err
	}

	if reply, ok := p.tool(ctx, text, in); ok {
		if _, err := s.single(reply); err != nil {
			return err
		}
		p.persist(ctx, req, reply, log)
		return nil
	}

	actx := p.assemble(ctx, req, in)
	if actx.Searched {
		if err := s.searching(); err != nil {
			return err
		}
	}

	start := time.Now()
	stream, provider, err := p.llm.Stream(ctx, actx.Request(req.Prompt))
	if err != nil {
		metrics.LLMRequests.WithLabelValues("none", "stream", "error").Inc()
		log.WithError(err).Error("Model stream failed to open")
		return s.fail(err)
	}
	defer stream.Close()
	metrics.LLMLatency.Observe(time.Since(start).Seconds())
	log = log.WithField("provider", provider)

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("Client went away mid-stream")
			return err
		}
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequests.WithLabelValues(provider, "stream", "error").Inc()
			log.WithError(err).Error("Model stream failed")
			return s.fail(err)
		}
		if err := s.token(fragment); err != nil {
			log.WithError(err).Debug("Client went away mid-stream")
			return err
		}
	}
	metrics.LLMRequests.WithLabelValues(provider, "stream", "ok").Inc()

	full, err := s.finish(actx.Searched)
	if err != nil {
		return err
	}
	if full != "" {
		p.persist(ctx, req, full, log)
	}
	p.countMessage(ctx, log)
	p.logEvent("Stream response: " + prefix(req.Prompt, 50))
	return nil
}

func (p *Pipeline) classify(text string) intent.Intent {
	in := p.classifier.Classify(text)
	metrics.IntentCount.WithLabelValues(string(in)).Inc()
	return in
}

func (p *Pipeline) requestLogger(req Request, in intent.Intent) *logging.Logger {
	return p.logger.WithFields(map[string]interface{}{
		"conversation_id": req.ConversationID,
		"intent":          in,
	})
}

// control handles mode_change and memory_clear. These exchanges are
// never persisted or counted.
func (p *Pipeline) control(ctx context.Context, req Request, text string, in intent.Intent, log *logging.Logger) (string, Route, bool) {
	switch in {
	case intent.ModeChange:
		mode, err := persona.ModeFromCommand(text)
		if err != nil {
			return persona.UnknownModeReply(), RouteMode, true
		}
		p.modes.Set(req.ConversationID, mode)
		p.logEvent("Mode switched to " + strings.ToUpper(string(mode)))
		return persona.ConfirmationReply(mode), RouteMode, true

	case intent.MemoryClear:
		if p.history != nil {
			err := p.history.Clear(ctx, req.ConversationID)
			if err != nil && !errors.Is(err, core.ErrConversationNotFound) {
				log.WithError(err).Warn("Failed to clear history")
			}
		}
		p.logEvent("Memory cleared")
		return MemoryClearedReply, RouteMemory, true
	}
	return "", "", false
}

func (p *Pipeline) tool(ctx context.Context, text string, in intent.Intent) (string, bool) {
	if p.tools == nil || in == intent.Autonomous {
		return "", false
	}
	reply, ok := p.tools.Execute(ctx, in, text)
	if ok {
		metrics.ToolCalls.WithLabelValues(string(in)).Inc()
	}
	return reply, ok
}

func (p *Pipeline) assemble(ctx context.Context, req Request, in intent.Intent) *assembler.Context {
	return p.assembler.Assemble(ctx, assembler.Input{
		Mode:           p.modes.Get(req.ConversationID),
		Intent:         in,
		Prompt:         req.Prompt,
		ConversationID: req.ConversationID,
		Attachment:     req.attachment(),
	})
}

func (p *Pipeline) persist(ctx context.Context, req Request, reply string, log *logging.Logger) {
	if p.history == nil {
		return
	}
	if err := p.history.Persist(ctx, req.ConversationID, req.Prompt, reply); err != nil {
		log.WithError(err).Warn("Failed to persist exchange")
	}
}

func (p *Pipeline) countMessage(ctx context.Context, log *logging.Logger) {
	if p.counter == nil {
		return
	}
	if err := p.counter.IncrementMessageCount(ctx); err != nil {
		log.WithError(err).Warn("Failed to count message")
	}
}

func (p *Pipeline) logEvent(msg string) {
	if p.journal != nil {
		p.journal.Append(msg)
	}
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

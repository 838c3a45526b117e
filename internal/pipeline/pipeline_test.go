package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sentience/sentience/internal/assembler"
	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/journal"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/persona"
	"github.com/sentience/sentience/internal/storage"
	"github.com/sentience/sentience/internal/testutil"
	"github.com/sentience/sentience/internal/testutil/mockservers"
	"github.com/sentience/sentience/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSink keeps every frame; failAfter > 0 makes the Nth send fail
type recordingSink struct {
	mu        sync.Mutex
	opened    bool
	closed    int
	frames    []Frame
	failAfter int
}

func (s *recordingSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *recordingSink) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.frames) >= s.failAfter {
		return io.ErrClosedPipe
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *recordingSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// assertFraming checks that token frames concatenate to the single
// terminal frame's text and that the terminal frame comes last
func assertFraming(t *testing.T, frames []Frame) Frame {
	t.Helper()
	if len(frames) == 0 {
		t.Fatal("no frames emitted")
	}
	var tokens strings.Builder
	terminals := 0
	for i, f := range frames {
		if f.Terminal() {
			terminals++
			if i != len(frames)-1 {
				t.Errorf("terminal frame at %d of %d", i, len(frames))
			}
			continue
		}
		if f.Kind() == KindToken {
			tokens.WriteString(f.Token)
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal frames = %d, want 1", terminals)
	}
	last := frames[len(frames)-1]
	if last.Kind() == KindDone && last.FullText != tokens.String() {
		t.Errorf("fullText = %q, tokens = %q", last.FullText, tokens.String())
	}
	return last
}

type env struct {
	conversations *storage.ConversationStore
	legacy        *storage.LegacyStore
	analytics     *storage.AnalyticsStore
	provider      *testutil.MockProvider
	searcher      *testutil.MockSearcher
	journal       *journal.Journal
	modes         *persona.Registry
	pipeline      *Pipeline
}

func newEnv(t *testing.T, provider llm.Provider) *env {
	t.Helper()
	db := testutil.TestDB(t)
	logger := logging.New(io.Discard, logging.ERROR)

	e := &env{
		conversations: storage.NewConversationStore(db),
		legacy:        storage.NewLegacyStore(db, 20),
		analytics:     storage.NewAnalyticsStore(db),
		searcher:      &testutil.MockSearcher{},
		journal:       journal.New(50),
		modes:         persona.NewRegistry(),
	}
	if mp, ok := provider.(*testutil.MockProvider); ok {
		e.provider = mp
	}
	history := storage.NewHistory(e.conversations, e.legacy)

	asm := assembler.New(assembler.Config{
		History:       history,
		Personal:      storage.NewPersonalStore(db),
		Knowledge:     storage.NewKnowledgeStore(db, 20, 3000),
		Search:        e.searcher,
		SearchTimeout: time.Second,
		Models:        assembler.Models{Fast: "fast-model", Deep: "deep-model"},
		Logger:        logger,
	})

	e.pipeline = New(Config{
		Modes: e.modes,
		Tools: tools.NewExecutor(tools.Config{
			Recorder: e.analytics,
			Location: time.UTC,
		}),
		Assembler: asm,
		LLM:       llm.NewRouter(llm.RouterConfig{Providers: []llm.Provider{provider}}),
		History:   history,
		Counter:   e.analytics,
		Journal:   e.journal,
		Logger:    logger,
	})
	return e
}

func newMockEnv(t *testing.T, fragments ...string) *env {
	return newEnv(t, &testutil.MockProvider{NameValue: "mock", Fragments: fragments})
}

func (e *env) messageCount(t *testing.T) int64 {
	t.Helper()
	snap, err := e.analytics.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap.MessageCount
}

func TestAsk_RejectsEmptyPrompt(t *testing.T) {
	e := newMockEnv(t, "unused")
	ctx := testutil.TestContext(t)

	_, err := e.pipeline.Ask(ctx, Request{Prompt: "   "})
	if !errors.Is(err, core.ErrEmptyPrompt) {
		t.Fatalf("Ask() error = %v, want ErrEmptyPrompt", err)
	}
	if e.provider.Calls() != 0 {
		t.Error("provider called for an empty prompt")
	}
	if n := e.messageCount(t); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestAsk_FileContextWithoutPrompt(t *testing.T) {
	e := newMockEnv(t, "It is a list.")
	ctx := testutil.TestContext(t)

	reply, err := e.pipeline.Ask(ctx, Request{FileContext: "a, b, c"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply.Text != "It is a list." {
		t.Errorf("reply = %q", reply.Text)
	}
	if sys := e.provider.LastRequest().System; !strings.Contains(sys, "=== ATTACHED FILE CONTENT ===\na, b, c") {
		t.Errorf("attachment missing from system prompt: %q", sys)
	}
}

func TestAsk_TimeUsesToolNotModel(t *testing.T) {
	e := newMockEnv(t, "should not be used")
	ctx := testutil.TestContext(t)

	reply, err := e.pipeline.Ask(ctx, Request{Prompt: "time"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !regexp.MustCompile(`^Current time: \d{1,2}:\d{2}:\d{2} (AM|PM)`).MatchString(reply.Text) {
		t.Errorf("reply = %q, want a time", reply.Text)
	}
	if reply.Route != RouteTool {
		t.Errorf("route = %q, want tool", reply.Route)
	}
	if e.provider.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", e.provider.Calls())
	}
	if n, _ := e.analytics.ToolCount(ctx, "time"); n != 1 {
		t.Errorf("tool usage for time = %d, want 1", n)
	}
	if n := e.messageCount(t); n != 0 {
		t.Errorf("message count = %d, want 0 for tool replies", n)
	}
	turns, _ := e.legacy.Load(ctx)
	if len(turns) != 2 {
		t.Errorf("legacy turns = %d, want 2", len(turns))
	}
}

func TestAsk_ModeDevThenCodingSelectsDeepModel(t *testing.T) {
	e := newMockEnv(t, "func reverse() {}")
	ctx := testutil.TestContext(t)

	reply, err := e.pipeline.Ask(ctx, Request{Prompt: "mode dev"})
	if err != nil {
		t.Fatalf("Ask(mode dev) error = %v", err)
	}
	if !strings.Contains(reply.Text, "DEV MODE") {
		t.Errorf("reply = %q", reply.Text)
	}
	if got := e.modes.Get(""); got != persona.Dev {
		t.Fatalf("mode = %q, want dev", got)
	}
	if turns, _ := e.legacy.Load(ctx); len(turns) != 0 {
		t.Errorf("mode change persisted %d turns", len(turns))
	}

	reply, err = e.pipeline.Ask(ctx, Request{Prompt: "write a function to reverse a string"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply.Intent != "coding" {
		t.Errorf("intent = %q, want coding", reply.Intent)
	}
	req := e.provider.LastRequest()
	if req.Model != "deep-model" || req.Temperature != 0.2 || req.MaxTokens != 2048 {
		t.Errorf("params = %s/%v/%d, want deep-model/0.2/2048", req.Model, req.Temperature, req.MaxTokens)
	}
	if !strings.HasPrefix(req.System, persona.Dev.Personality()) {
		t.Error("system prompt does not start with the dev personality")
	}
	if n := e.messageCount(t); n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
}

func TestAsk_ModeIsScopedPerConversation(t *testing.T) {
	e := newMockEnv(t, "ok")
	ctx := testutil.TestContext(t)

	if _, err := e.pipeline.Ask(ctx, Request{Prompt: "mode cyber", ConversationID: "a"}); err != nil {
		t.Fatal(err)
	}
	if e.modes.Get("a") != persona.Cyber {
		t.Errorf("mode(a) = %q", e.modes.Get("a"))
	}
	if e.modes.Get("b") != persona.Core || e.modes.Get("") != persona.Core {
		t.Error("mode leaked into other sessions")
	}
}

func TestAsk_UnknownMode(t *testing.T) {
	e := newMockEnv(t)
	ctx := testutil.TestContext(t)

	reply, err := e.pipeline.Ask(ctx, Request{Prompt: "mode pirate"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != persona.UnknownModeReply() {
		t.Errorf("reply = %q", reply.Text)
	}
	if e.modes.Get("") != persona.Core {
		t.Error("mode changed on an unknown name")
	}
}

func TestAsk_Calculator(t *testing.T) {
	e := newMockEnv(t)
	ctx := testutil.TestContext(t)

	tests := []struct {
		prompt string
		want   string
	}{
		{"calc 2 + 2 * 3", "8"},
		{"calc import os", tools.InvalidCalculation},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			reply, err := e.pipeline.Ask(ctx, Request{Prompt: tt.prompt})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(reply.Text, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", reply.Text, tt.want)
			}
		})
	}
	if e.provider.Calls() != 0 {
		t.Error("calculator reached the model")
	}
}

func TestAsk_ConversationKeepsFourTurns(t *testing.T) {
	e := newMockEnv(t, "answer")
	ctx := testutil.TestContext(t)

	first := "tell me about the history of the roman empire in great detail please"
	for _, prompt := range []string{first, "and then?"} {
		if _, err := e.pipeline.Ask(ctx, Request{Prompt: prompt, ConversationID: "conv-d"}); err != nil {
			t.Fatalf("Ask(%q) error = %v", prompt, err)
		}
	}

	conv, err := e.conversations.Get(ctx, "conv-d")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	wantRoles := []core.Role{core.RoleUser, core.RoleAssistant, core.RoleUser, core.RoleAssistant}
	if len(conv.Turns) != len(wantRoles) {
		t.Fatalf("turns = %d, want 4", len(conv.Turns))
	}
	for i, role := range wantRoles {
		if conv.Turns[i].Role != role {
			t.Errorf("turn %d role = %q, want %q", i, conv.Turns[i].Role, role)
		}
	}
	if conv.Turns[0].Content != first || conv.Turns[2].Content != "and then?" {
		t.Error("turns out of chronological order")
	}
	if !strings.HasPrefix(first, conv.Title) || conv.Title == "" {
		t.Errorf("title = %q, want a prefix of the first prompt", conv.Title)
	}

	// The second call saw the first exchange as history
	if msgs := e.provider.LastRequest().Messages; len(msgs) != 3 {
		t.Errorf("second request messages = %d, want 3", len(msgs))
	}
}

func TestAsk_MemoryClear(t *testing.T) {
	e := newMockEnv(t, "noted")
	ctx := testutil.TestContext(t)

	if _, err := e.pipeline.Ask(ctx, Request{Prompt: "remember me", ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}
	reply, err := e.pipeline.Ask(ctx, Request{Prompt: "clear memory", ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != MemoryClearedReply {
		t.Errorf("reply = %q", reply.Text)
	}
	conv, err := e.conversations.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Turns) != 0 {
		t.Errorf("turns after clear = %d, want 0", len(conv.Turns))
	}
	if n := e.messageCount(t); n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}

	// Clearing an unknown conversation is not an error
	if _, err := e.pipeline.Ask(ctx, Request{Prompt: "forget everything", ConversationID: "missing"}); err != nil {
		t.Errorf("Ask() error = %v", err)
	}
}

func TestAsk_ProviderFailureIsNotPersisted(t *testing.T) {
	provider := &testutil.MockProvider{CompleteFunc: func(context.Context, llm.Request) (string, error) {
		return "", errors.New("API error 500: boom")
	}}
	e := newEnv(t, provider)
	ctx := testutil.TestContext(t)

	if _, err := e.pipeline.Ask(ctx, Request{Prompt: "hello there"}); err == nil {
		t.Fatal("Ask() error = nil, want provider failure")
	}
	if turns, _ := e.legacy.Load(ctx); len(turns) != 0 {
		t.Errorf("persisted %d turns after failure", len(turns))
	}
	if n := e.messageCount(t); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestAsk_EmptyCompletion(t *testing.T) {
	e := newMockEnv(t, "  ")
	reply, err := e.pipeline.Ask(testutil.TestContext(t), Request{Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != NoResponseReply {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestSearchIntent_IsAcknowledgedLocally(t *testing.T) {
	e := newMockEnv(t, "unused")
	ctx := testutil.TestContext(t)

	reply, err := e.pipeline.Ask(ctx, Request{Prompt: "search golang generics"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Route != RouteTool || !strings.Contains(reply.Text, "golang generics") {
		t.Errorf("reply = %+v", reply)
	}
	if len(e.searcher.Queries()) != 0 || e.provider.Calls() != 0 {
		t.Error("search acknowledgment reached the web or the model")
	}
}

func TestKeywordSearch_EnrichesSilently(t *testing.T) {
	e := newMockEnv(t, "Go 1.24 is out.")
	e.searcher.SearchFunc = func(context.Context, string) (string, error) {
		return "Go 1.24 released", nil
	}
	ctx := testutil.TestContext(t)
	sink := &recordingSink{}

	if err := e.pipeline.Stream(ctx, Request{Prompt: "what is the latest go release"}, sink); err != nil {
		t.Fatal(err)
	}
	frames := sink.Frames()
	last := assertFraming(t, frames)
	if frames[0].Kind() != KindSearching {
		t.Errorf("first frame = %+v, want searching", frames[0])
	}
	if !last.Searched {
		t.Error("done frame searched = false")
	}
	if sys := e.provider.LastRequest().System; !strings.Contains(sys, "=== REAL-TIME WEB SEARCH ===\nGo 1.24 released") {
		t.Errorf("search section missing: %q", sys)
	}
}

func TestStream_Framing(t *testing.T) {
	e := newMockEnv(t, "Hel", "lo", " wor", "ld")
	ctx := testutil.TestContext(t)
	sink := &recordingSink{}

	if err := e.pipeline.Stream(ctx, Request{Prompt: "say hello", ConversationID: "s1"}, sink); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	frames := sink.Frames()
	last := assertFraming(t, frames)
	if last.FullText != "Hello world" || last.Searched {
		t.Errorf("done frame = %+v", last)
	}
	if len(frames) != 5 {
		t.Errorf("frames = %d, want one per fragment plus done", len(frames))
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
	for _, s := range e.provider.Streams() {
		if !s.Closed() {
			t.Error("provider stream left open")
		}
	}

	conv, _ := e.conversations.Get(ctx, "s1")
	if len(conv.Turns) != 2 || conv.Turns[1].Content != "Hello world" {
		t.Errorf("persisted turns = %+v", conv.Turns)
	}
	if n := e.messageCount(t); n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}
}

func TestStream_SpecialIntentsUseSameFraming(t *testing.T) {
	for _, prompt := range []string{"mode analyst", "clear memory", "quote", "calc 1+1"} {
		t.Run(prompt, func(t *testing.T) {
			e := newMockEnv(t, "unused")
			sink := &recordingSink{}
			if err := e.pipeline.Stream(testutil.TestContext(t), Request{Prompt: prompt}, sink); err != nil {
				t.Fatal(err)
			}
			frames := sink.Frames()
			assertFraming(t, frames)
			if len(frames) != 2 {
				t.Errorf("frames = %d, want 2", len(frames))
			}
			if e.provider.Calls() != 0 {
				t.Error("special intent reached the model")
			}
		})
	}
}

func TestStream_RejectsEmptyPromptBeforeOpening(t *testing.T) {
	e := newMockEnv(t)
	sink := &recordingSink{}
	err := e.pipeline.Stream(testutil.TestContext(t), Request{}, sink)
	if !errors.Is(err, core.ErrEmptyPrompt) {
		t.Fatalf("Stream() error = %v", err)
	}
	if sink.opened || sink.closed != 0 {
		t.Error("sink touched for an invalid request")
	}
}

func TestStream_ProviderErrorMidStream(t *testing.T) {
	var stream *testutil.MockStream
	provider := &testutil.MockProvider{StreamFunc: func(context.Context, llm.Request) (llm.Stream, error) {
		stream = &testutil.MockStream{Fragments: []string{"par", "tial"}, Err: errors.New("connection reset")}
		return stream, nil
	}}
	e := newEnv(t, provider)
	ctx := testutil.TestContext(t)
	sink := &recordingSink{}

	if err := e.pipeline.Stream(ctx, Request{Prompt: "hello"}, sink); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	last := assertFraming(t, sink.Frames())
	if last.Kind() != KindError || !strings.Contains(last.Error, "connection reset") {
		t.Errorf("last frame = %+v, want error", last)
	}
	if !stream.Closed() {
		t.Error("provider stream left open after error")
	}
	if turns, _ := e.legacy.Load(ctx); len(turns) != 0 {
		t.Errorf("persisted %d turns after a failed stream", len(turns))
	}
	if n := e.messageCount(t); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}

	b, _ := json.Marshal(last)
	if string(b) != `{"error":"connection reset","done":true}` {
		t.Errorf("error frame = %s", b)
	}
}

func TestStream_NoProviderAvailable(t *testing.T) {
	e := newEnv(t, &testutil.MockProvider{Unconfigured: true})
	sink := &recordingSink{}
	if err := e.pipeline.Stream(testutil.TestContext(t), Request{Prompt: "hello"}, sink); err != nil {
		t.Fatal(err)
	}
	last := assertFraming(t, sink.Frames())
	if last.Kind() != KindError {
		t.Errorf("last frame = %+v, want error", last)
	}
}

func TestStream_ClientDisconnectReleasesProvider(t *testing.T) {
	e := newMockEnv(t, "a", "b", "c", "d")
	ctx := testutil.TestContext(t)
	sink := &recordingSink{failAfter: 2}

	if err := e.pipeline.Stream(ctx, Request{Prompt: "hello"}, sink); err == nil {
		t.Fatal("Stream() error = nil, want client failure")
	}
	streams := e.provider.Streams()
	if len(streams) != 1 || !streams[0].Closed() {
		t.Error("provider stream left open after disconnect")
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
	if turns, _ := e.legacy.Load(ctx); len(turns) != 0 {
		t.Errorf("persisted %d turns after disconnect", len(turns))
	}
}

func TestStream_CancelledContext(t *testing.T) {
	e := newMockEnv(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}

	e.pipeline.Stream(ctx, Request{Prompt: "hello"}, sink)
	if last := assertFraming(t, sink.Frames()); last.Kind() != KindError {
		t.Errorf("last frame = %+v, want error", last)
	}
	if n := e.messageCount(t); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestStream_OverHTTPProvider(t *testing.T) {
	server := mockservers.NewOpenAIMockServer(t, "The ", "answer ", "is 42.")
	client := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: server.URL()})
	e := newEnv(t, client)
	ctx := testutil.TestContext(t)
	sink := &recordingSink{}

	if err := e.pipeline.Stream(ctx, Request{Prompt: "what is the answer"}, sink); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	last := assertFraming(t, sink.Frames())
	if last.FullText != "The answer is 42." {
		t.Errorf("fullText = %q", last.FullText)
	}

	reqs := server.Requests()
	if len(reqs) != 1 || !reqs[0].Stream || reqs[0].Model != "fast-model" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestStream_TruncatedHTTPProvider(t *testing.T) {
	server := mockservers.NewOpenAIMockServer(t, "one ", "two")
	server.Truncate = true
	client := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: server.URL()})
	e := newEnv(t, client)
	sink := &recordingSink{}

	if err := e.pipeline.Stream(testutil.TestContext(t), Request{Prompt: "count"}, sink); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	assertFraming(t, sink.Frames())
}

func TestStream_JournalEntries(t *testing.T) {
	e := newMockEnv(t, "ok")
	ctx := testutil.TestContext(t)

	e.pipeline.Stream(ctx, Request{Prompt: "mode tutor"}, &recordingSink{})
	e.pipeline.Stream(ctx, Request{Prompt: "explain gravity"}, &recordingSink{})

	var msgs []string
	for _, entry := range e.journal.Recent(10) {
		msgs = append(msgs, entry.Message)
	}
	joined := strings.Join(msgs, "|")
	if !strings.Contains(joined, "Mode switched to TUTOR") || !strings.Contains(joined, "Stream response: explain gravity") {
		t.Errorf("journal = %v", msgs)
	}
}

func TestFrame_JSON(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{TokenFrame("hi"), `{"token":"hi","done":false}`},
		{SearchingFrame(), `{"searching":true}`},
		{DoneFrame("hi", true), `{"done":true,"fullText":"hi","searched":true}`},
		{DoneFrame("", false), `{"done":true,"fullText":"","searched":false}`},
		{ErrorFrame(""), `{"error":"Stream failed","done":true}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.frame)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal = %s, want %s", b, tt.want)
		}

		var back Frame
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatal(err)
		}
		if back.Kind() != tt.frame.Kind() {
			t.Errorf("round trip kind = %v, want %v", back.Kind(), tt.frame.Kind())
		}
	}
}

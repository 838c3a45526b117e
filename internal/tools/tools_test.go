package tools

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sentience/sentience/internal/intent"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) IncrementToolUsage(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[name]++
	return nil
}

func (r *countingRecorder) get(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

// dataAPI fakes every external source the executor talks to
func dataAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/weather/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "4" {
			t.Errorf("weather format = %q, want 4", r.URL.Query().Get("format"))
		}
		city := strings.TrimPrefix(r.URL.Path, "/weather/")
		fmt.Fprintf(w, "%s: ☀️ +21°C\n", city)
	})
	mux.HandleFunc("/hn/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[11,12,13,14,15,16,17]")
	})
	mux.HandleFunc("/hn/item/", func(w http.ResponseWriter, r *http.Request) {
		var id int
		fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/hn/item/"), "%d.json", &id)
		if id == 13 {
			// Slow item must still land in position 3
			time.Sleep(20 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"id": %d, "title": "Story %d"}`, id, id)
	})
	mux.HandleFunc("/joke", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"setup": "Why?", "punchline": "Because."}`)
	})
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ip": "203.0.113.7"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestExecutor(t *testing.T, base string, rec UsageRecorder) *Executor {
	t.Helper()
	return NewExecutor(Config{
		WeatherURL: base + "/weather/",
		NewsURL:    base + "/hn/",
		JokeURL:    base + "/joke",
		IPURL:      base + "/ip",
		Timeout:    2 * time.Second,
		Recorder:   rec,
		Now:        func() time.Time { return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC) },
		Location:   time.UTC,
		Rand:       rand.New(rand.NewSource(1)),
	})
}

func TestExecute_DeterministicTools(t *testing.T) {
	rec := &countingRecorder{}
	e := newTestExecutor(t, "http://127.0.0.1:1", rec)
	ctx := context.Background()

	tests := []struct {
		intent intent.Intent
		text   string
		want   string
	}{
		{intent.Time, "time", "Current time: 3:09:26 PM (UTC)"},
		{intent.Date, "date", "Today is Fri Mar 14 2025 (Friday, March 14, 2025)"},
		{intent.Calc, "calc 2 + 2 * 3", "Calculation: 2 + 2 * 3 = 8"},
		{intent.Calc, "calculate (1+1)/4", "Calculation: (1+1)/4 = 0.5"},
		{intent.Calc, "calc import os", InvalidCalculation},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := e.Execute(ctx, tt.intent, tt.text)
			if !ok {
				t.Fatalf("Execute(%v) declined", tt.intent)
			}
			if got != tt.want {
				t.Errorf("Execute(%v, %q) = %q, want %q", tt.intent, tt.text, got, tt.want)
			}
		})
	}

	if rec.get("calc") != 3 {
		t.Errorf("calc usage = %d, want 3", rec.get("calc"))
	}
	if rec.get("time") != 1 || rec.get("date") != 1 {
		t.Errorf("time/date usage = %d/%d, want 1/1", rec.get("time"), rec.get("date"))
	}
}

func TestExecute_TimeMatchesClockFormat(t *testing.T) {
	e := NewExecutor(Config{})
	got, ok := e.Execute(context.Background(), intent.Time, "time")
	if !ok {
		t.Fatal("time should never decline")
	}
	if !regexp.MustCompile(`^Current time: \d{1,2}:\d{2}:\d{2} (AM|PM) \(.+\)$`).MatchString(got) {
		t.Errorf("unexpected time reply %q", got)
	}
}

func TestExecute_Declines(t *testing.T) {
	rec := &countingRecorder{}
	e := newTestExecutor(t, "http://127.0.0.1:1", rec)

	for _, i := range []intent.Intent{intent.Autonomous, intent.Coding, intent.General, intent.ModeChange, intent.MemoryClear} {
		if reply, ok := e.Execute(context.Background(), i, "anything"); ok {
			t.Errorf("Execute(%v) = %q, should decline", i, reply)
		}
		if e.Handles(i) {
			t.Errorf("Handles(%v) = true", i)
		}
	}
	if len(rec.counts) != 0 {
		t.Errorf("declined intents must not be recorded, got %v", rec.counts)
	}
}

func TestExecute_NetworkTools(t *testing.T) {
	srv := dataAPI(t)
	rec := &countingRecorder{}
	e := newTestExecutor(t, srv.URL, rec)
	ctx := context.Background()

	t.Run("weather", func(t *testing.T) {
		got, _ := e.Execute(ctx, intent.Weather, "weather in tokyo")
		if !strings.HasPrefix(got, "Weather for tokyo:\n") || !strings.Contains(got, "+21°C") {
			t.Errorf("weather reply = %q", got)
		}
	})

	t.Run("news keeps feed order", func(t *testing.T) {
		got, _ := e.Execute(ctx, intent.News, "news")
		want := "🔥 Top Tech Headlines (Hacker News):\n1. Story 11\n2. Story 12\n3. Story 13\n4. Story 14\n5. Story 15"
		if got != want {
			t.Errorf("news reply = %q, want %q", got, want)
		}
	})

	t.Run("joke", func(t *testing.T) {
		got, _ := e.Execute(ctx, intent.Joke, "joke")
		if got != "😄 Why?\n\nBecause." {
			t.Errorf("joke reply = %q", got)
		}
	})

	t.Run("ip", func(t *testing.T) {
		got, _ := e.Execute(ctx, intent.IP, "my ip")
		if got != "🌐 Your public IP: 203.0.113.7" {
			t.Errorf("ip reply = %q", got)
		}
	})

	for _, name := range []string{"weather", "news", "joke", "ip"} {
		if rec.get(name) != 1 {
			t.Errorf("usage[%s] = %d, want 1", name, rec.get(name))
		}
	}
}

func TestExecute_NetworkFailuresDegrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	e := newTestExecutor(t, srv.URL, rec)
	ctx := context.Background()

	tests := []struct {
		intent intent.Intent
		text   string
		want   string
	}{
		{intent.Weather, "weather paris", WeatherUnavailable},
		{intent.News, "news", NewsUnavailable},
		{intent.Joke, "joke", FallbackJoke},
		{intent.IP, "ip", IPUnavailable},
	}

	for _, tt := range tests {
		got, ok := e.Execute(ctx, tt.intent, tt.text)
		if !ok {
			t.Errorf("%v should still resolve with an apology", tt.intent)
		}
		if got != tt.want {
			t.Errorf("%v reply = %q, want %q", tt.intent, got, tt.want)
		}
		if rec.get(string(tt.intent)) != 1 {
			t.Errorf("%v usage = %d, want 1", tt.intent, rec.get(string(tt.intent)))
		}
	}
}

func TestExecute_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	e := NewExecutor(Config{IPURL: srv.URL, Timeout: 50 * time.Millisecond})

	start := time.Now()
	got, _ := e.Execute(context.Background(), intent.IP, "ip")
	if got != IPUnavailable {
		t.Errorf("reply = %q, want %q", got, IPUnavailable)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("tool call should respect its timeout")
	}
}

func TestExecute_QuoteFromEmbeddedList(t *testing.T) {
	e := newTestExecutor(t, "http://127.0.0.1:1", nil)

	for i := 0; i < 20; i++ {
		got, ok := e.Execute(context.Background(), intent.Quote, "quote")
		if !ok {
			t.Fatal("quote should never decline")
		}
		found := false
		for _, q := range quotations {
			if strings.Contains(got, q.content) && strings.HasSuffix(got, q.author) {
				found = true
			}
		}
		if !found {
			t.Errorf("quote %q not from embedded list", got)
		}
	}
}

func TestExecute_SearchIsAcknowledgmentOnly(t *testing.T) {
	rec := &countingRecorder{}
	e := newTestExecutor(t, "http://127.0.0.1:1", rec)

	got, ok := e.Execute(context.Background(), intent.Search, "search for golang channels")
	if !ok {
		t.Fatal("search should resolve")
	}
	if !strings.Contains(got, `"golang channels"`) {
		t.Errorf("acknowledgment should echo the query, got %q", got)
	}
	if rec.get("search") != 1 {
		t.Errorf("search usage = %d, want 1", rec.get("search"))
	}
}

func TestTools_Catalogue(t *testing.T) {
	seen := make(map[string]bool)
	for _, tool := range Tools() {
		if seen[tool.ID] {
			t.Errorf("duplicate tool %q", tool.ID)
		}
		seen[tool.ID] = true
	}
	for _, id := range []string{"time", "calc", "weather", "news", "joke", "quote", "ip"} {
		if !seen[id] {
			t.Errorf("catalogue missing %q", id)
		}
	}
}

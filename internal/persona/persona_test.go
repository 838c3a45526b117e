package persona

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sentience/sentience/internal/core"
)

func TestParse(t *testing.T) {
	for _, m := range Modes {
		got, err := Parse(string(m))
		if err != nil || got != m {
			t.Errorf("Parse(%q) = %v, %v", m, got, err)
		}
	}

	if got, err := Parse(" DEV "); err != nil || got != Dev {
		t.Errorf("Parse should normalize, got %v, %v", got, err)
	}

	_, err := Parse("pirate")
	if !errors.Is(err, core.ErrUnknownMode) {
		t.Errorf("Parse(pirate) error = %v, want ErrUnknownMode", err)
	}
}

func TestModeFromCommand(t *testing.T) {
	if m, err := ModeFromCommand("mode analyst"); err != nil || m != Analyst {
		t.Errorf("ModeFromCommand = %v, %v", m, err)
	}
	if _, err := ModeFromCommand("mode "); err == nil {
		t.Error("empty mode name should fail")
	}
}

func TestPersonality_AllModesHaveText(t *testing.T) {
	for _, m := range Modes {
		if !strings.Contains(m.Personality(), "SENTIENCE") {
			t.Errorf("%v personality missing product name", m)
		}
	}
}

func TestReplies(t *testing.T) {
	if got := ConfirmationReply(Dev); !strings.Contains(got, "**DEV MODE**") {
		t.Errorf("ConfirmationReply(dev) = %q", got)
	}
	want := "Unknown mode. Available: core, analyst, creative, cyber, tutor, dev"
	if got := UnknownModeReply(); got != want {
		t.Errorf("UnknownModeReply() = %q, want %q", got, want)
	}
}

func TestRegistry_PerSession(t *testing.T) {
	r := NewRegistry()

	if got := r.Get("a"); got != DefaultMode {
		t.Errorf("unset session = %v, want %v", got, DefaultMode)
	}

	r.Set("a", Dev)
	r.Set(LegacySession, Tutor)

	if r.Get("a") != Dev {
		t.Errorf("session a = %v, want dev", r.Get("a"))
	}
	if r.Get("b") != DefaultMode {
		t.Errorf("session b should be unaffected, got %v", r.Get("b"))
	}
	if r.Get(LegacySession) != Tutor {
		t.Errorf("legacy session = %v, want tutor", r.Get(LegacySession))
	}

	r.Forget("a")
	if r.Get("a") != DefaultMode {
		t.Errorf("forgotten session = %v, want default", r.Get("a"))
	}

	r.Set(LegacySession, Core)
	if len(r.Snapshot()) != 0 {
		t.Errorf("default modes should not be held, got %v", r.Snapshot())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := string(rune('a' + i%5))
			r.Set(session, Modes[i%len(Modes)])
			_ = r.Get(session)
		}(i)
	}
	wg.Wait()
}

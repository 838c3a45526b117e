package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// capture redirects the default logger for the duration of the test
func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	origLevel := defaultLogger.sink.level
	origOutput := defaultLogger.sink.output
	t.Cleanup(func() {
		SetLevel(origLevel)
		SetOutput(origOutput)
	})

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	return &buf
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{" DEBUG ", DEBUG},
		{"warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"info", INFO},
		{"", INFO},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithField_DoesNotModifyParent(t *testing.T) {
	logger := WithField("key", "value")

	if logger.fields["key"] != "value" {
		t.Error("field not set correctly")
	}
	if len(defaultLogger.fields) > 0 {
		t.Error("should not modify default logger")
	}
	if logger.sink != defaultLogger.sink {
		t.Error("derived logger should share the parent sink")
	}
}

func TestWithFields_Merges(t *testing.T) {
	base := WithField("existing", "value")
	derived := base.WithFields(map[string]interface{}{"key1": "value1", "key2": 42})

	if len(base.fields) != 1 {
		t.Errorf("base fields = %d, want 1", len(base.fields))
	}
	if derived.fields["existing"] != "value" || derived.fields["key1"] != "value1" || derived.fields["key2"] != 42 {
		t.Errorf("derived fields = %v", derived.fields)
	}
}

func TestLog_LevelFiltering(t *testing.T) {
	buf := capture(t, WARN)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN should be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN and ERROR should be written, got %q", out)
	}
}

func TestLog_FieldsSortedAndFormatted(t *testing.T) {
	buf := capture(t, DEBUG)

	WithFields(map[string]interface{}{"zeta": 1, "alpha": "a"}).Info("hello %s", "world")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Errorf("formatted message missing: %q", out)
	}
	if !strings.Contains(out, "| alpha=a zeta=1") {
		t.Errorf("fields should be sorted by key: %q", out)
	}
}

func TestWithError(t *testing.T) {
	buf := capture(t, DEBUG)

	WithError(errors.New("boom")).Warn("write failed")

	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("error field missing: %q", buf.String())
	}
}

func TestPrintf_TrimsNewline(t *testing.T) {
	buf := capture(t, DEBUG)

	Default().Printf("request %d\n", 7)

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Errorf("expected exactly one line, got %q", out)
	}
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "request 7") {
		t.Errorf("unexpected line: %q", out)
	}
}

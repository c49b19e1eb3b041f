package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nopWriter{})
		SetLevel(LevelInfo)
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Info("hidden")
	Warn("shown", "count", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at WARN level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown count=2") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestErrorIncludesErr(t *testing.T) {
	buf := capture(t)

	Error("save failed", errors.New("disk full"), "path", "events.json")

	out := buf.String()
	if !strings.Contains(out, `err="disk full"`) {
		t.Errorf("missing quoted err value: %q", out)
	}
	if !strings.Contains(out, "path=events.json") {
		t.Errorf("missing kv pair: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

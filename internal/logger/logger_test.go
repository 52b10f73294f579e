package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelDebug))

	log.Info("report prepared", "batch", "b1", "aggregator", 1)

	line := buf.String()
	if !strings.Contains(line, "[INF] report prepared batch=b1 aggregator=1") {
		t.Errorf("unexpected line %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("line %q not newline terminated", line)
	}
}

func TestHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, slog.LevelWarn)
	log := slog.New(h)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("records below WARN were written: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[WRN] shown") {
		t.Errorf("WARN record missing: %q", buf.String())
	}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("INFO should be disabled")
	}
}

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, slog.LevelInfo))

	base.With("aggregator", 2).Info("finished", "accepted", 5)
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	if !strings.HasSuffix(lines[0], "finished aggregator=2 accepted=5") {
		t.Errorf("unexpected line %q", lines[0])
	}
	if strings.Contains(lines[1], "aggregator") {
		t.Errorf("attrs leaked into parent logger: %q", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("unknown level should fail")
	}
}

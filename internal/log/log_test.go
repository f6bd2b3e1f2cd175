package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("inventory loaded", "center", "C-01")

	out := buf.String()
	if !strings.Contains(out, "inventory loaded") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "center=C-01") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("turn completed", "calls", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["msg"] != "turn completed" {
		t.Errorf("msg = %v, want %q", entry["msg"], "turn completed")
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("should be dropped")
	logger.Info("should be dropped too")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn entry missing from output: %q", buf.String())
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must not write anywhere observable.
	logger.Error("discarded", "key", "value")
}

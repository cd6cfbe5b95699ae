package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatPretty} {
		var buf bytes.Buffer
		logger, err := New(&buf, format, "info")
		if err != nil {
			t.Fatalf("New(%s): %v", format, err)
		}
		logger.Debug("hidden")
		logger.Info("shown", "step", 3)
		out := buf.String()
		if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
			t.Fatalf("format=%s out=%q", format, out)
		}
	}
	if _, err := New(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := New(&bytes.Buffer{}, FormatText, "loud"); err == nil {
		t.Fatalf("expected bad level error")
	}
}

func TestPrettyJSONHandler_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyJSONHandler(&buf, nil)).With("episode", "e1")
	logger.WithGroup("reward").Info("step done",
		"agent", 2,
		"total", 1.5,
		"err", errors.New("boom"),
	)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["msg"] != "step done" || got["episode"] != "e1" {
		t.Fatalf("head=%v", got)
	}
	group, ok := got["reward"].(map[string]any)
	if !ok {
		t.Fatalf("missing group: %v", got)
	}
	if group["agent"] != float64(2) || group["total"] != 1.5 || group["err"] != "boom" {
		t.Fatalf("group=%v", group)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatalf("expected indented output: %q", buf.String())
	}
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	return line
}

func TestFromContextCarriesRequestAndOwner(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, config.LoggingConfig{Level: "info", Format: "json"}))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := WithOwnerID(WithRequestID(context.Background(), "req-1"), 42)
	FromContext(ctx).Info("hello")

	line := decodeLine(t, &buf)
	if line["request_id"] != "req-1" || line["owner_id"] != float64(42) {
		t.Errorf("line = %v", line)
	}
}

func TestContextRecordsGetIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LoggingConfig{Format: "JSON"})

	l.InfoContext(WithRequestID(context.Background(), "req-2"), "computed", "request_id", "explicit")
	line := decodeLine(t, &buf)
	if line["request_id"] != "explicit" {
		t.Errorf("explicit attr should win, got %v", line["request_id"])
	}

	buf.Reset()
	l.With("component", "stats").InfoContext(WithOwnerID(context.Background(), 7), "computed")
	line = decodeLine(t, &buf)
	if line["owner_id"] != float64(7) || line["component"] != "stats" {
		t.Errorf("line = %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.LoggingConfig{Level: "warn", Format: "text"})
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line should be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn line should be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

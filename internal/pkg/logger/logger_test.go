package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_FormatByEnv(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "prod", "info").Info("hello", slog.String("k", "v"))
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("prod logger should emit JSON: %v (%s)", err, buf.String())
	}
	if entry["k"] != "v" {
		t.Fatalf("missing attribute: %v", entry)
	}

	buf.Reset()
	New(&buf, "local", "warn").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	New(&buf, "local", "warn").Warn("kept")
	if !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("expected text output, got %s", buf.String())
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoggerWritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, zerolog.DebugLevel).With(String("component", "test"))

	l.Info("trained",
		Int("episodes", 5),
		Float64("reward", 0.5),
		Bool("activated", true),
		Duration("elapsed_ms", 1500*time.Millisecond),
		Error(errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	want := map[string]interface{}{
		"component":  "test",
		"episodes":   float64(5),
		"reward":     0.5,
		"activated":  true,
		"elapsed_ms": float64(1500),
		"error":      "boom",
		"message":    "trained",
		"level":      "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn entry")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestFieldValueForCollector(t *testing.T) {
	m := fieldMap([]Field{Error(nil), Strings("tags", []string{"a", "b"}), Any("n", 3)})
	if m["error"] != nil || m["tags"] != "a, b" || m["n"] != 3 {
		t.Fatalf("unexpected map %v", m)
	}
}

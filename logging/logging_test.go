package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf})

	logger.Info("login",
		"username", "alice",
		"password", "hunter2",
		"csrf_token", "abc",
		"API_KEY", "sk_harbor_x",
		slog.Group("request", slog.String("authorization", "Bearer z"), slog.String("ip", "192.0.2.1")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, buf.String())
	}
	if entry["username"] != "alice" {
		t.Fatalf("username should be kept, got %v", entry["username"])
	}
	for _, k := range []string{"password", "csrf_token", "API_KEY"} {
		if entry[k] != Redacted {
			t.Fatalf("%s not redacted: %v", k, entry[k])
		}
	}
	req, ok := entry["request"].(map[string]any)
	if !ok {
		t.Fatalf("missing request group: %v", entry)
	}
	if req["authorization"] != Redacted || req["ip"] != "192.0.2.1" {
		t.Fatalf("group attributes not handled: %v", req)
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatal("raw secret leaked into output")
	}
}

func TestNewTextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "secret", "s3cr3t")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatal("info should be filtered at warn level")
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "secret="+Redacted) {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != slog.Default() {
		t.Fatal("nil logger should fall back to slog.Default")
	}
	l := Discard()
	if OrDefault(l) != l {
		t.Fatal("non-nil logger must be returned unchanged")
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
)

// decode parses the single JSON entry in buf.
func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON entry %q: %v", buf.String(), err)
	}
	return entry
}

func bufferLogger(level, format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return newWithWriter(config.LoggingConfig{Level: level, Format: format}, "9.9.9", &buf, nil), &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_DefaultFields(t *testing.T) {
	logger, buf := bufferLogger("info", "json")
	logger.Info("session listening", "host", "192.168.1.20")

	entry := decode(t, buf)
	want := map[string]any{
		"msg":     "session listening",
		"service": ServiceName,
		"version": "9.9.9",
		"host":    "192.168.1.20",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLogger_TextFormat(t *testing.T) {
	logger, buf := bufferLogger("info", "TEXT")
	logger.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("output = %q, want text handler", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := bufferLogger("warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn entry missing")
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	logger, buf := bufferLogger("info", "json")
	logger.Info("config loaded",
		"jwt_secret", "0123456789abcdef",
		"mqtt_password", "hunter2",
		"Authorization", "Bearer abc",
		"influx_token", "tok",
		"host", "broker.lan",
	)

	entry := decode(t, buf)
	for _, k := range []string{"jwt_secret", "mqtt_password", "Authorization", "influx_token"} {
		if entry[k] != redacted {
			t.Errorf("%s = %v, want %q", k, entry[k], redacted)
		}
	}
	if entry["host"] != "broker.lan" {
		t.Errorf("host = %v, should not be redacted", entry["host"])
	}
}

func TestLogger_Component(t *testing.T) {
	logger, buf := bufferLogger("info", "json")
	child := logger.Component("hass")

	if child == logger {
		t.Fatal("Component() returned the parent")
	}
	child.Info("bridge started")

	if got := decode(t, buf)["component"]; got != "hass" {
		t.Errorf("component = %v, want hass", got)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	logger := New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File:   config.FileLoggingConfig{Path: path, MaxSize: 1},
	}, "1.0.0")

	logger.Component("session").Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") || !strings.Contains(string(data), `"component":"session"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestClose_StdStreams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", ""} {
		logger := New(config.LoggingConfig{Output: out}, "1.0.0")
		if err := logger.Close(); err != nil {
			t.Errorf("Close() for %q output error = %v", out, err)
		}
	}
	if err := Default().Close(); err != nil {
		t.Errorf("Default().Close() error = %v", err)
	}
}

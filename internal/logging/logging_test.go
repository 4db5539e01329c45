package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		got := ParseLevel(tt.input)
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error: %v", err)
	}

	logger.Info("test message", zap.String("key", "value"))
	logger.Debug("hidden")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected one valid JSON line, got error: %v\noutput: %s", err, buf.String())
	}
	if m["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got %q", m["msg"])
	}
	if m["key"] != "value" {
		t.Errorf("expected key 'value', got %q", m["key"])
	}
	if m["level"] != "info" {
		t.Errorf("expected level 'info', got %q", m["level"])
	}
	if _, ok := m["time"]; !ok {
		t.Error("expected a time field")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "debug", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error: %v", err)
	}

	logger.Debug("test message", zap.String("key", "value"))

	out := buf.String()
	if !strings.Contains(out, "DEBUG") || !strings.Contains(out, "test message") {
		t.Errorf("expected console output with level and message, got: %s", out)
	}
	if !strings.Contains(out, `"key": "value"`) {
		t.Errorf("expected console output containing the field, got: %s", out)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logwhisper.log")
	logger, err := New(Config{Level: "warn", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Errorf("info line should be filtered at warn level: %s", data)
	}
	if !strings.Contains(string(data), "kept") {
		t.Errorf("expected warn line in file, got: %s", data)
	}
}

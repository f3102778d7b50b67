package logger

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
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_WritesJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	log.Debug("hidden")
	log.Info("loaded track", zap.String("slot", "track0"))
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "loaded track" || entry["slot"] != "track0" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mixpoint.log")
	log, err := New(Config{Level: "debug", OutputPath: path, Console: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	log.Warn("storage slow")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "storage slow") {
		t.Errorf("log file = %q, want it to contain the message", data)
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLoggerSkipsDebug(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
}

func TestWithOrgTagsLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").WithOrg("org-42")
	logger.Info("appointment rescheduled", "appointment_id", "a-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["org_id"] != "org-42" {
		t.Fatalf("expected org_id tag, got %v", line["org_id"])
	}
	if line["appointment_id"] != "a-1" {
		t.Fatalf("expected appointment_id attr, got %v", line["appointment_id"])
	}
}

func TestWithOrgNilSafe(t *testing.T) {
	var logger *Logger
	if got := logger.WithOrg("org-1"); got == nil || got.Logger == nil {
		t.Fatal("expected WithOrg on nil logger to fall back to default")
	}
}

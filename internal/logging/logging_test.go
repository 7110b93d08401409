package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"depthbook/internal/config"
)

func TestNewLevel(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"", false, true},
		{"nonsense", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(config.LoggingConfig{Level: tt.level}, &buf)

			logger.Debug().Msg("debug line")
			logger.Info().Msg("info line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("Expected debug=%v, got output %q", tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Errorf("Expected info=%v, got output %q", tt.wantInfo, out)
			}
		})
	}
}

func TestNewJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, &buf)

	logger.Info().Str("component", "engine").Msg("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "engine" {
		t.Errorf("Expected component field, got %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Errorf("Expected a timestamp, got %v", entry)
	}
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Pretty: true}, &buf)

	logger.Info().Msg("pretty line")

	if json.Valid(buf.Bytes()) {
		t.Errorf("Expected console output, got JSON %q", buf.String())
	}
	if !strings.Contains(buf.String(), "pretty line") {
		t.Errorf("Expected message in output, got %q", buf.String())
	}
}

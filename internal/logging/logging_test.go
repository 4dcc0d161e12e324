package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_Format(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		tty      bool
		wantJSON bool
	}{
		{"auto on tty", "auto", true, false},
		{"auto off tty", "auto", false, true},
		{"forced json", "json", true, true},
		{"forced text", "text", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, closer, err := newLogger(config.LoggingConfig{Level: "info", Format: tt.format}, &buf, tt.tty)
			if err != nil {
				t.Fatal(err)
			}
			defer closer.Close()

			logger.Info("hello", "k", "v")
			isJSON := json.Valid(bytes.TrimSpace(buf.Bytes()))
			if isJSON != tt.wantJSON {
				t.Errorf("output %q: json = %v, want %v", buf.String(), isJSON, tt.wantJSON)
			}
		})
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf, false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	var buf bytes.Buffer
	logger, closer, err := newLogger(config.LoggingConfig{Level: "info", Format: "auto", File: path}, &buf, true)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(bytes.TrimSpace(data)) || !strings.Contains(string(data), "to file") {
		t.Errorf("file contents = %q", data)
	}
	if buf.String() != string(data) {
		t.Errorf("stdout and file differ: %q vs %q", buf.String(), data)
	}
}

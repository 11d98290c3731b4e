package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func resetLogger() {
	SetLevel(LevelInfo)
	SetFormat("text")
	SetOutput(os.Stdout)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range cases {
		got, err := ParseLevel(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) expected error, got nil", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("debug message logged at warn level")
	}
	if strings.Contains(out, "info message") {
		t.Errorf("info message logged at warn level")
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "error message") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("json")

	Info("sync complete: %d records", 42)

	var entry struct {
		Timestamp string `json:"timestamp"`
		Level     string `json:"level"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
	if entry.Message != "sync complete: 42 records" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Timestamp == "" {
		t.Errorf("timestamp missing")
	}
}

func TestTextFormatHasTimestampAndLevel(t *testing.T) {
	defer resetLogger()

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("hello")

	out := buf.String()
	if !strings.Contains(out, "[INFO] hello") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("output missing trailing newline: %q", out)
	}
}

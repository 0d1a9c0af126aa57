package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	redact := false
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf, RedactPHI: &redact})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("claim processed", slog.String("claim_id", "claim-001"))
	logger.Debug("should be filtered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["msg"] != "claim processed" || entry["claim_id"] != "claim-001" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := New(Config{Format: "yaml"}); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("denial received",
		slog.String("claim_id", "claim-001"),
		slog.String("ssn", "123-45-6789"),
		slog.String("patient_name", "Jane Roe"),
		slog.Group("subscriber",
			slog.String("member_id", "M-100"),
			slog.String("plan", "PPO")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}

	if entry["claim_id"] != "claim-001" {
		t.Errorf("claim_id redacted unexpectedly: %v", entry["claim_id"])
	}
	if entry["ssn"] != RedactedValue {
		t.Errorf("ssn = %v, want redacted", entry["ssn"])
	}
	if entry["patient_name"] != RedactedValue {
		t.Errorf("patient_name = %v, want redacted", entry["patient_name"])
	}

	subscriber, ok := entry["subscriber"].(map[string]any)
	if !ok {
		t.Fatalf("subscriber group missing: %v", entry)
	}
	if subscriber["member_id"] != RedactedValue {
		t.Errorf("member_id = %v, want redacted", subscriber["member_id"])
	}
	if subscriber["plan"] != "PPO" {
		t.Errorf("plan = %v, want PPO", subscriber["plan"])
	}
}

func TestRedactingHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Config{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger := base.With(slog.String("dob", "1980-01-01"))
	logger.Info("eligibility check")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["dob"] != RedactedValue {
		t.Errorf("dob = %v, want redacted", entry["dob"])
	}
}

func TestRedactingHandlerCustomKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := NewRedactingHandler(slog.NewJSONHandler(&buf, nil), []string{"carc_note"})
	logger := slog.New(handler)

	logger.Info("note", slog.String("carc_note", "secret"), slog.String("carc_code", "29"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if entry["carc_note"] != RedactedValue {
		t.Errorf("carc_note = %v, want redacted", entry["carc_note"])
	}
	if entry["carc_code"] != "29" {
		t.Errorf("carc_code = %v, want 29", entry["carc_code"])
	}
}

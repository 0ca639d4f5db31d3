package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"iaeco.app/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithActor(ctx, Actor{Name: "Ana Lima", CompanyID: 7})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" || entry["event"] != "audit.test" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user"] != "Ana Lima" || entry["company_id"] != float64(7) {
		t.Fatalf("unexpected actor: %v %v", entry["user"], entry["company_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestViolation(t *testing.T) {
	buf := captureLog(t)
	Violation(context.Background(), "company_access", map[string]any{"micro_company_id": 42})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["event"] != "security.violation" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	fields := entry["fields"].(map[string]any)
	if fields["action"] != "company_access" || fields["micro_company_id"] != float64(42) {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithContextEmitsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	testLogger := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-2")
	ctx = ContextWithJobID(ctx, "job-3")

	ctxLogger := WithContext(ctx, testLogger)
	ctxLogger.Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry[FieldRequestID] != "req-1" {
		t.Errorf("request_id = %v, want req-1", entry[FieldRequestID])
	}
	if entry[FieldSessionID] != "sess-2" {
		t.Errorf("session_id = %v, want sess-2", entry[FieldSessionID])
	}
	if entry[FieldJobID] != "job-3" {
		t.Errorf("job_id = %v, want job-3", entry[FieldJobID])
	}
}

func TestFromContextPrefersContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctxLogger := zerolog.New(&buf).With().Str("origin", "ctx").Logger()
	ctx := ctxLogger.WithContext(context.Background())

	FromContext(ctx).Info().Msg("routed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["origin"] != "ctx" {
		t.Errorf("origin = %v, want ctx", entry["origin"])
	}
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.GetLevel() > zerolog.PanicLevel {
		t.Error("expected usable fallback logger")
	}
}

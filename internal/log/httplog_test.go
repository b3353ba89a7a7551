package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogHTTPRequestLevels(t *testing.T) {
	tests := []struct {
		status   int
		err      error
		expected zapcore.Level
	}{
		{200, nil, zapcore.InfoLevel},
		{404, nil, zapcore.WarnLevel},
		{422, errors.New("net rain: numeric degeneracy"), zapcore.WarnLevel},
		{500, errors.New("boom"), zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		LogHTTPRequest(zap.New(core).Sugar(), HTTPLogEntry{
			Method:   "POST",
			Path:     "/api/v1/design-flood",
			Status:   tt.status,
			Duration: 1500 * time.Microsecond,
			RunID:    "run-1",
			Err:      tt.err,
		})

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("status %d: got %d entries, expected 1", tt.status, len(entries))
		}
		e := entries[0]
		if e.Level != tt.expected {
			t.Errorf("status %d logged at %s, expected %s", tt.status, e.Level, tt.expected)
		}
		fields := e.ContextMap()
		if fields["run_id"] != "run-1" || fields["duration_ms"] != 1.5 {
			t.Errorf("status %d: unexpected fields %v", tt.status, fields)
		}
		if _, ok := fields["error"]; ok != (tt.err != nil) {
			t.Errorf("status %d: error field present = %v", tt.status, ok)
		}
	}
}

func TestGetSugaredLoggerFallback(t *testing.T) {
	if GetSugaredLogger() == nil {
		t.Fatal("expected a fallback logger before Init")
	}
	if err := Init(true); err != nil {
		t.Fatal(err)
	}
	defer Sync()
	if GetZapLogger() == nil {
		t.Fatal("expected the initialized logger")
	}
}

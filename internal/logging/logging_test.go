package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/tracefire/internal/replay"
)

func TestNewWritesAtLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", zap.Int("index", 3))
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "WARN") || !strings.Contains(out, "index") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		" Fatal ": zapcore.FatalLevel,
		"dpanic":  zapcore.DPanicLevel,
		"panic":   zapcore.PanicLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFailureLoggerLogsHTTPStatus(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fl := NewFailureLogger(zap.New(core), 100, 10)

	fl.LogFailure(replay.DispatchRecord{Index: 4, Offset: time.Second}, replay.Response{
		Err:     &replay.HTTPError{StatusCode: 503, Body: "unavailable"},
		Latency: 20 * time.Millisecond,
	})
	fl.LogFailure(replay.DispatchRecord{Index: 5}, replay.Response{StatusCode: 200})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["index"] != int64(4) || fields["status"] != int64(503) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestFailureLoggerThrottles(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fl := NewFailureLogger(zap.New(core), 0.001, 2)

	for i := 0; i < 10; i++ {
		fl.LogFailure(replay.DispatchRecord{Index: i}, replay.Response{Err: errors.New("refused")})
	}
	if got := logs.Len(); got != 2 {
		t.Fatalf("expected burst of 2 lines, got %d", got)
	}
	if fl.Suppressed() != 8 {
		t.Fatalf("expected 8 suppressed, got %d", fl.Suppressed())
	}

	fl.Flush()
	last := logs.All()[logs.Len()-1]
	if last.ContextMap()["suppressed"] != int64(8) {
		t.Fatalf("expected flush to report 8 suppressed, got %v", last.ContextMap())
	}
	if fl.Suppressed() != 0 {
		t.Fatal("flush should reset the suppressed counter")
	}
}

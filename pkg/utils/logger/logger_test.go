package logger

import (
	"context"
	"testing"

	"neurojudge/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func useObserver(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := global.Load()
	global.Store(zap.New(core))
	t.Cleanup(func() { global.Store(prev) })
	return logs
}

func TestContextFieldsAttached(t *testing.T) {
	logs := useObserver(t, zapcore.InfoLevel)

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = WithSubmission(ctx, 42)
	ctx = WithPhase(ctx, "execute")
	Info(ctx, "executed", zap.String("login", "ada"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0].ContextMap()
	want := map[string]interface{}{
		"trace_id":      "trace-1",
		"submission_id": int64(42),
		"phase":         "execute",
		"login":         "ada",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %v, want %v", k, got[k], v)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	logs := useObserver(t, zapcore.WarnLevel)

	Debug(context.Background(), "skipped")
	Info(context.Background(), "skipped")
	Warn(context.Background(), "kept")
	Error(context.TODO(), "kept too")

	if n := logs.Len(); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	if _, err := build(Config{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := build(Config{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("build: %v", err)
	}
}

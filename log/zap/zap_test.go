package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/querycache"
)

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Warn("provider write failed", querycache.Fields{"key": "q:t:abc", "err": errors.New("full")})
	l.Debug("no fields", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	got := entries[0].ContextMap()
	if got["key"] != "q:t:abc" || got["err"] != "full" {
		t.Fatalf("fields=%v", got)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("level=%v", entries[0].Level)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := New("debug"); err != nil {
		t.Fatalf("New(debug): %v", err)
	}
}

// Package zap adapts a *zap.Logger to querycache.Logger.
package zap

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/querycache"
)

var _ querycache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New builds a production JSON logger at level ("debug", "info", ...).
func New(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return Logger{}, fmt.Errorf("zap: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return Logger{}, fmt.Errorf("zap: build logger: %w", err)
	}
	return Logger{L: l}, nil
}

func (z Logger) Debug(msg string, f querycache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f querycache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f querycache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f querycache.Fields) { z.L.Error(msg, fields(f)...) }

// Sync flushes buffered entries.
func (z Logger) Sync() error { return z.L.Sync() }

func fields(f querycache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}

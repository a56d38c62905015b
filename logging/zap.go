// Package logging adapts zap to the auth.Logger interface.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for level ("debug", "info", ...) and format
// ("json" or "console")
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// Adapter satisfies auth.Logger. Calls with a format verb are rendered
// printf style, anything else is logged as a message with key value pairs.
type Adapter struct {
	s *zap.SugaredLogger
}

func NewAdapter(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *Adapter) Debug(format string, args ...any) {
	if isPrintf(format, args) {
		a.s.Debugf(format, args...)
		return
	}
	a.s.Debugw(format, args...)
}

func (a *Adapter) Info(format string, args ...any) {
	if isPrintf(format, args) {
		a.s.Infof(format, args...)
		return
	}
	a.s.Infow(format, args...)
}

func (a *Adapter) Warn(format string, args ...any) {
	if isPrintf(format, args) {
		a.s.Warnf(format, args...)
		return
	}
	a.s.Warnw(format, args...)
}

func (a *Adapter) Error(format string, args ...any) {
	if isPrintf(format, args) {
		a.s.Errorf(format, args...)
		return
	}
	a.s.Errorw(format, args...)
}

// Sync flushes buffered entries
func (a *Adapter) Sync() error {
	return a.s.Sync()
}

func isPrintf(format string, args []any) bool {
	return len(args) == 0 || strings.Contains(format, "%")
}

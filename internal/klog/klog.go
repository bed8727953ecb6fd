// Package klog wraps zap into the dprintf-style leveled logging the
// original kernel's debug.h macros (dprintf(SPEW, ...), dprintf(INFO,
// ...), dprintf(CRITICAL, ...)) provide. Most of the core's own
// day-to-day operation stays silent and leaves logging to whatever
// embeds it (the cmd/lk CLI, in this module) — the one exception is
// kernel.fatal, which logs a Critical event through kernel.SetLogger's
// logger before it panics, so a programming-model violation is never
// silent even if nothing downstream recovers the panic.
package klog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the original debug levels, ordered least to most severe.
type Level int

const (
	Spew Level = iota
	Info
	Critical
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Spew:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is a thin leveled facade over *zap.SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger at the given minimum level, console-encoded the
// way an embedded target's serial console output would be.
func New(min Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.Level = zap.NewAtomicLevelAt(min.zapLevel())
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: l.Sugar()}, nil
}

// Nop returns a Logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Spew(template string, args ...any)    { l.sugar.Debugf(template, args...) }
func (l *Logger) Info(template string, args ...any)     { l.sugar.Infof(template, args...) }
func (l *Logger) Critical(template string, args ...any) { l.sugar.Errorf(template, args...) }
func (l *Logger) With(kv ...any) *Logger                { return &Logger{sugar: l.sugar.With(kv...)} }
func (l *Logger) Sync() error                           { return l.sugar.Sync() }

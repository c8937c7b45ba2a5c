// Package antlog provides the structured, leveled logger used by every
// long-running component (record store, routing table, replication
// engine, client coordinator). Messages carry alternating key/value
// context pairs; components receive a Logger at construction time
// instead of reaching for a package-global one.
package antlog

import (
	luxlog "github.com/luxfi/log"
	"go.uber.org/zap"
)

// Logger is the leveled key/value logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	With(keysAndValues ...any) Logger
}

// zapLogger is the default Logger, backed by zap's sugared API.
type zapLogger struct {
	z *zap.SugaredLogger
}

// New wraps a *zap.Logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{z: z.Sugar()}
}

// NewProduction returns a Logger using zap's production config (JSON
// output, info level).
func NewProduction() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.z.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.z.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.z.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.z.Errorw(msg, kv...) }
func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{z: l.z.With(kv...)}
}

// luxLogger adapts a luxfi/log logger, for processes that already route
// everything through that stack.
type luxLogger struct {
	l  luxlog.Logger
	kv []any
}

// FromLux wraps a luxfi/log logger.
func FromLux(l luxlog.Logger) Logger {
	return &luxLogger{l: l}
}

func (l *luxLogger) args(kv []any) []any {
	if len(l.kv) == 0 {
		return kv
	}
	merged := make([]any, 0, len(l.kv)+len(kv))
	merged = append(merged, l.kv...)
	return append(merged, kv...)
}

func (l *luxLogger) Debug(msg string, kv ...any) { l.l.Debug(msg, l.args(kv)...) }
func (l *luxLogger) Info(msg string, kv ...any)  { l.l.Info(msg, l.args(kv)...) }
func (l *luxLogger) Warn(msg string, kv ...any)  { l.l.Warn(msg, l.args(kv)...) }
func (l *luxLogger) Error(msg string, kv ...any) { l.l.Error(msg, l.args(kv)...) }
func (l *luxLogger) With(kv ...any) Logger {
	return &luxLogger{l: l.l, kv: l.args(kv)}
}

// noop is a no-op Logger for tests.
type noop struct{}

// NewNoop returns a Logger that discards everything.
func NewNoop() Logger { return noop{} }

func (noop) Debug(string, ...any) {}
func (noop) Info(string, ...any)  {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}
func (n noop) With(...any) Logger { return n }

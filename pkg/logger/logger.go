// Package logger provides context-free, structured logging built on zap.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger supports leveled, structured logging and decoration with key/value
// pairs that are carried onto every subsequent message.
type Logger interface {
	// With returns a derived logger that always includes the given
	// key/value pairs (e.g. request_id, upstream).
	With(args ...interface{}) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

type logger struct {
	*zap.SugaredLogger
}

// New creates a production logger (JSON output, info level and above).
func New() Logger {
	l, _ := zap.NewProduction()
	return NewWithZap(l)
}

// NewWithZap wraps a caller-configured zap.Logger.
func NewWithZap(l *zap.Logger) Logger {
	return &logger{l.Sugar()}
}

// NewForTest returns a logger plus the observed log entries, for assertions.
func NewForTest() (Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewWithZap(zap.New(core)), recorded
}

func (l *logger) With(args ...interface{}) Logger {
	if len(args) == 0 {
		return l
	}
	return &logger{l.SugaredLogger.With(args...)}
}

// Package logging provides a small structured-logging wrapper shared by
// every LLS component, backed by go-kit/log.
package logging

import (
	"os"
	"sync"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Logger is a named, structured logger. Components take one at construction
// time, named after their own package path.
type Logger struct {
	name string
	base kitlog.Logger
}

var (
	rootOnce sync.Once
	root     kitlog.Logger
)

func rootLogger() kitlog.Logger {
	rootOnce.Do(func() {
		root = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
		root = kitlog.With(root, "ts", kitlog.DefaultTimestampUTC)
	})
	return root
}

// GetLogger returns a Logger tagged with module.
func GetLogger(module string) *Logger {
	return &Logger{
		name: module,
		base: kitlog.With(rootLogger(), "module", module),
	}
}

// With returns a derived Logger carrying the given key/value pairs on every
// subsequent call.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{
		name: l.name,
		base: kitlog.With(l.base, keyvals...),
	}
}

func kv(msg string, keyvals ...interface{}) []interface{} {
	return append([]interface{}{"msg", msg}, keyvals...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	_ = level.Debug(l.base).Log(kv(msg, keyvals...)...) //nolint: errcheck
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	_ = level.Info(l.base).Log(kv(msg, keyvals...)...) //nolint: errcheck
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	_ = level.Warn(l.base).Log(kv(msg, keyvals...)...) //nolint: errcheck
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	_ = level.Error(l.base).Log(kv(msg, keyvals...)...) //nolint: errcheck
}

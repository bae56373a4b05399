package coz

import (
	"sync"

	"go.uber.org/zap"
)

var (
	log     *zap.Logger
	logOnce sync.Once
)

// logger returns the package's logger instance. It is a no-op logger unless
// SetLogger was called.
func logger() *zap.Logger {
	logOnce.Do(func() {
		if log == nil {
			log = zap.NewNop()
		}
	})
	return log
}

// SetLogger configures the package logger. It must be called before any
// frame is driven.
func SetLogger(l *zap.Logger) {
	log = l
}

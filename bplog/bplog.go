// Package bplog provides the structured-logging shim the buffer pool uses
// to trace hit/miss/evict/flush decisions at debug level. It is ambient
// observability, not part of the pool's functional contract: a host
// application that never looks at its output sees no behavioral difference.
package bplog

import (
	"log/slog"
	"sync"
)

var (
	mu     sync.RWMutex
	logger = slog.Default()
)

// SetLogger redirects trace output to logger. Passing nil resets to
// slog.Default().
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = slog.Default()
	}
	logger = l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug emits a debug-level trace event with structured fields, mirroring
// the logDebugPrefix-style tracing used by buffer pool implementations
// elsewhere in the ecosystem.
func Debug(msg string, args ...any) {
	current().Debug("bufferpool: "+msg, args...)
}

// Package logger provides a process-wide structured logger built on zap.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Initialize sets up the global logger. Safe to call multiple times; the
// last call wins. Debug mode is enabled by OPENACT_DEBUG=1.
func Initialize() {
	debug := os.Getenv("OPENACT_DEBUG") == "1"

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.DisableStacktrace = !debug

	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panic; callers still get
		// a non-nil Sugared logger.
		l = zap.NewNop()
	}

	mu.Lock()
	global = l.Sugar()
	mu.Unlock()
}

// Get returns the process-wide sugared logger, initializing a
// default one on first use if Initialize was never called.
func Get() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	Initialize()
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Infof logs at info level.
func Infof(template string, args ...interface{}) { Get().Infof(template, args...) }

// Debugf logs at debug level.
func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }

// Warnf logs at warn level.
func Warnf(template string, args ...interface{}) { Get().Warnf(template, args...) }

// Errorf logs at error level.
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }

// With returns a child logger with the given structured key/value pairs.
func With(args ...interface{}) *zap.SugaredLogger { return Get().With(args...) }

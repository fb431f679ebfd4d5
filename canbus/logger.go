package canbus

import (
	"log"
	"os"
)

// Logger is the observability sink used by the bus. Subscriber failures and
// rejected transmits are reported here instead of propagating to the caller.
type Logger interface {
	// Debugf logs a debug-level message.
	Debugf(format string, args ...any)
	// Infof logs an info-level message.
	Infof(format string, args ...any)
	// Warnf logs a warning message.
	Warnf(format string, args ...any)
	// Errorf logs an error-level message.
	Errorf(format string, args ...any)
}

type stdLogger struct {
	l *log.Logger
}

// NewStdLogger returns a Logger backed by the standard library writing to
// stderr.
func NewStdLogger(prefix string) Logger {
	return &stdLogger{l: log.New(os.Stderr, prefix, log.LstdFlags|log.Lmicroseconds)}
}

func (l *stdLogger) Debugf(format string, args ...any) { l.l.Printf("[DEBUG] "+format, args...) }
func (l *stdLogger) Infof(format string, args ...any)  { l.l.Printf("[INFO] "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...any)  { l.l.Printf("[WARN] "+format, args...) }
func (l *stdLogger) Errorf(format string, args ...any) { l.l.Printf("[ERROR] "+format, args...) }

type nopLogger struct{}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

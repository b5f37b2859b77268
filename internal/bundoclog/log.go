// Package bundoclog is a thin wrapper around the standard library logger,
// giving the rest of bundoc a consistent, leveled log line format without
// pulling in a third-party logging stack the original author never used.
package bundoclog

import (
	"io"
	"log"
	"os"
)

// Logger writes leveled lines prefixed with the component name.
type Logger struct {
	inner *log.Logger
}

// New returns a Logger that writes to w (os.Stderr if w is nil), tagging
// every line with component.
func New(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{inner: log.New(w, "["+component+"] ", log.LstdFlags)}
}

// Discard returns a Logger that writes nowhere.
func Discard(component string) *Logger {
	return New(component, io.Discard)
}

func (l *Logger) Info(format string, args ...any) {
	l.inner.Printf("INFO "+format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.inner.Printf("WARN "+format, args...)
}

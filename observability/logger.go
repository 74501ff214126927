// Package observability defines shared logging primitives.
package observability

import (
	"fmt"
	"log"
	"strings"
)

// Logger captures structured logging behaviours shared across layers. Pools
// themselves never log; the registry, runner, and daemon do.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// NewStdLogger wraps a standard library logger. A nil base uses the process
// default logger.
func NewStdLogger(base *log.Logger) Logger {
	if base == nil {
		base = log.Default()
	}
	return &stdLogger{base: base}
}

type stdLogger struct {
	base *log.Logger
}

func (l *stdLogger) Debug(msg string, fields ...Field) { l.print("DEBUG", msg, fields) }
func (l *stdLogger) Info(msg string, fields ...Field)  { l.print("INFO", msg, fields) }
func (l *stdLogger) Error(msg string, fields ...Field) { l.print("ERROR", msg, fields) }

func (l *stdLogger) print(level, msg string, fields []Field) {
	if len(fields) == 0 {
		l.base.Printf("%s %s", level, msg)
		return
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	l.base.Printf("%s %s %s", level, msg, strings.Join(parts, " "))
}

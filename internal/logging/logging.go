// Package logging provides the levelled line logger shared by the store,
// the watch bridge and the CLI.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes "<RFC3339> <LEVEL> <component>: <message>" lines.
// A nil *Logger discards everything.
type Logger struct {
	out       *log.Logger
	level     Level
	component string
	now       func() time.Time
}

func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out:       log.New(w, "", 0),
		level:     level,
		component: "tasktxt",
		now:       time.Now,
	}
}

// Discard returns a logger that drops every line.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// With returns a copy of l tagged with component.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	c := *l
	c.component = component
	return &c
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", l.now().Format(time.RFC3339), level, l.component, msg)
}

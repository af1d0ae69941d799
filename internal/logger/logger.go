// Package logger is the leveled logger shared by the server, the CLI and
// the pipeline stages. Levels are off, normal (info/warn/error) and verbose
// (adds debug). A nil *Logger discards everything.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	LevelOff Level = iota
	LevelNormal
	LevelVerbose
)

// ParseLevel maps "off", "normal"/"info" and "verbose"/"debug".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "quiet":
		return LevelOff, nil
	case "", "normal", "info":
		return LevelNormal, nil
	case "verbose", "debug":
		return LevelVerbose, nil
	}
	return LevelNormal, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	mu     sync.RWMutex
	level  Level
	debug  *log.Logger
	info   *log.Logger
	warn   *log.Logger
	errLog *log.Logger
}

// New writes to out, or os.Stderr when out is nil.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	flags := log.LstdFlags | log.LUTC
	return &Logger{
		level:  level,
		debug:  log.New(out, "[DBG] ", flags),
		info:   log.New(out, "[INF] ", flags),
		warn:   log.New(out, "[WRN] ", flags),
		errLog: log.New(out, "[ERR] ", flags),
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(LevelOff, io.Discard)
}

func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) emit(min Level, dst *log.Logger, format string, args []any) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level >= min {
		dst.Output(3, fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Debug(format string, args ...any) { l.emit(LevelVerbose, l.debugLog(), format, args) }
func (l *Logger) Info(format string, args ...any)  { l.emit(LevelNormal, l.infoLog(), format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelNormal, l.warnLog(), format, args) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelNormal, l.errorLog(), format, args) }

func (l *Logger) debugLog() *log.Logger {
	if l == nil {
		return nil
	}
	return l.debug
}

func (l *Logger) infoLog() *log.Logger {
	if l == nil {
		return nil
	}
	return l.info
}

func (l *Logger) warnLog() *log.Logger {
	if l == nil {
		return nil
	}
	return l.warn
}

func (l *Logger) errorLog() *log.Logger {
	if l == nil {
		return nil
	}
	return l.errLog
}

// Std exposes the error stream as a *log.Logger for http.Server.ErrorLog.
func (l *Logger) Std() *log.Logger {
	if l == nil {
		return log.New(io.Discard, "", 0)
	}
	return l.errLog
}

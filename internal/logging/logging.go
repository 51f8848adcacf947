package logging

import (
	"io"
	"log"
	"os"
	"strings"
)

// Level orders log severities; messages below the logger's minimum are
// discarded before formatting.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelTags = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// ParseLevel maps a config string to a Level, defaulting unknown or empty
// values to info so a typo never silences the service.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger struct {
	min  Level
	base *log.Logger
}

func New(level string) *Logger {
	return NewWithWriter(os.Stdout, ParseLevel(level))
}

// NewWithWriter directs output to w; tests capture it with a bytes.Buffer.
func NewWithWriter(w io.Writer, min Level) *Logger {
	return &Logger{min: min, base: log.New(w, "", log.LstdFlags)}
}

func (l *Logger) logf(lv Level, format string, args ...any) {
	if lv < l.min {
		return
	}
	l.base.Printf("["+levelTags[lv]+"] "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

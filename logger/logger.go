package logger

import (
	"errors"
	"fmt"
	"strings"
)

type Level int

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel

	_minLevel = TraceLevel
	_maxLevel = OffLevel
)

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case OffLevel:
		return "off"
	default:
		return "unknown"
	}
}

var errInvalidLevel = errors.New("invalid level")

// ParseLevel converts a level name, as printed by [Level.String] or "off", into a Level.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "off" {
		return OffLevel, nil
	}
	for lvl := _minLevel; lvl < _maxLevel; lvl++ {
		if lvl.String() == name {
			return lvl, nil
		}
	}
	return OffLevel, fmt.Errorf("unknown log level %q", name)
}

// Field is a key/value pair attached to every message of a [Logger].
type Field struct {
	Key   string
	Value string
}

// Sink writes log messages. f is called only if lvl passes the sink level.
type Sink interface {
	Log(lvl Level, fields []Field, f func() string)
	Level() Level
}

// Logger builds messages lazily and passes them to its Sink together with its fields.
type Logger struct {
	Sink
	fields []Field
}

// New returns a logger without fields that writes to sink.
func New(sink Sink) *Logger {
	return &Logger{Sink: sink}
}

// With returns a logger that adds key=value to every message. The receiver is not modified.
func (l *Logger) With(key string, value string) *Logger {
	fields := make([]Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return &Logger{Sink: l.Sink, fields: fields}
		}
	}
	return &Logger{Sink: l.Sink, fields: append(fields, Field{key, value})}
}

func (l *Logger) Fields() []Field {
	return l.fields
}

func (l *Logger) Enabled(lvl Level) bool {
	return lvl >= l.Level() && lvl < OffLevel
}

func (l *Logger) Log(lvl Level, f func() string) {
	l.Sink.Log(lvl, l.fields, f)
}

func (l *Logger) Trace(f func() string) {
	l.Log(TraceLevel, f)
}

func (l *Logger) Debug(f func() string) {
	l.Log(DebugLevel, f)
}

func (l *Logger) Info(f func() string) {
	l.Log(InfoLevel, f)
}

func (l *Logger) Infof(format string, values ...interface{}) {
	l.Log(InfoLevel, func() string {
		return fmt.Sprintf(format, values...)
	})
}

func (l *Logger) Warnf(format string, values ...interface{}) {
	l.Log(WarnLevel, func() string {
		return fmt.Sprintf(format, values...)
	})
}

func (l *Logger) Errorf(format string, values ...interface{}) {
	l.Log(ErrorLevel, func() string {
		return fmt.Errorf(format, values...).Error()
	})
}

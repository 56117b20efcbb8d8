package logger

import (
	"log"
	"strings"
)

type defaultSink struct {
	l       *log.Logger
	sinkLvl Level
}

// NewSink adapts a standard library logger. Messages are written as "LEVEL: [key=value ...] message".
func NewSink(l *log.Logger, lvl Level) (Sink, error) {
	if lvl < _minLevel || lvl > _maxLevel {
		return nil, errInvalidLevel
	}
	return &defaultSink{l, lvl}, nil
}

func (sink *defaultSink) Log(lvl Level, fields []Field, f func() string) {
	if lvl < sink.sinkLvl || lvl >= OffLevel || sink.l == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(strings.ToUpper(lvl.String()))
	for sb.Len() < 5 {
		sb.WriteByte(' ')
	}
	sb.WriteString(": ")
	if len(fields) > 0 {
		sb.WriteByte('[')
		for i, field := range fields {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(field.Key)
			sb.WriteByte('=')
			sb.WriteString(field.Value)
		}
		sb.WriteString("] ")
	}
	sb.WriteString(f())
	_ = sink.l.Output(3, sb.String())
}

func (sink *defaultSink) Level() Level {
	return sink.sinkLvl
}

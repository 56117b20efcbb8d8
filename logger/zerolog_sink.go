package logger

import (
	"github.com/rs/zerolog"
)

type zerologSink struct {
	l       zerolog.Logger
	sinkLvl Level
}

// NewZerologSink adapts a zerolog logger. Messages below lvl are not built at all, the zerolog level
// of l filters the rest.
func NewZerologSink(l zerolog.Logger, lvl Level) (Sink, error) {
	if lvl < _minLevel || lvl > _maxLevel {
		return nil, errInvalidLevel
	}
	return &zerologSink{l: l.With().Str("component", "ignite").Logger(), sinkLvl: lvl}, nil
}

func (sink *zerologSink) Log(lvl Level, fields []Field, f func() string) {
	if lvl < sink.sinkLvl {
		return
	}
	var ev *zerolog.Event
	switch lvl {
	case TraceLevel:
		ev = sink.l.Trace()
	case DebugLevel:
		ev = sink.l.Debug()
	case InfoLevel:
		ev = sink.l.Info()
	case WarnLevel:
		ev = sink.l.Warn()
	case ErrorLevel:
		ev = sink.l.Error()
	default:
		return
	}
	if ev == nil {
		return
	}
	for _, field := range fields {
		ev = ev.Str(field.Key, field.Value)
	}
	ev.Msg(f())
}

func (sink *zerologSink) Level() Level {
	return sink.sinkLvl
}

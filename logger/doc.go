/*
Package logger provides leveled, lazily built logging for the thin client.

Levels are ordered TraceLevel < DebugLevel < InfoLevel < WarnLevel < ErrorLevel < OffLevel. A message
below the sink level is dropped before its text is built, OffLevel disables the sink.

A [Logger] carries key/value fields added with [Logger.With]. The client tags connection messages with
the remote address and router messages with component=router, sinks decide how fields are rendered.

Custom sinks implement

	type Sink interface {
		Log(lvl Level, fields []Field, f func() string)
		Level() Level
	}

Two sinks are bundled: [NewSink] wraps a log.Logger and prints fields as [key=value ...], [NewZerologSink]
wraps a zerolog.Logger and emits fields as JSON attributes.
*/
package logger

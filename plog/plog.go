// Package plog provides the logging capability injected into the vision
// components. The rdk logging.Logger satisfies Logger directly; the C plugin
// uses the zerolog adapter.
package plog

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger is the sugared, key/value logging surface used by this module.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// ZerologAdapter implements Logger on top of a zerolog.Logger.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerolog writes JSON lines to writer at or above level.
func NewZerolog(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("component", "aruco-bridge").
		Logger()

	return &ZerologAdapter{logger: logger}
}

// NewConsole writes human readable lines to writer.
func NewConsole(writer io.Writer, level zerolog.Level) *ZerologAdapter {
	return NewZerolog(zerolog.ConsoleWriter{Out: writer, NoColor: true}, level)
}

func (z *ZerologAdapter) Debugw(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Debug(), msg, keysAndValues)
}

func (z *ZerologAdapter) Infow(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Info(), msg, keysAndValues)
}

func (z *ZerologAdapter) Warnw(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Warn(), msg, keysAndValues)
}

func (z *ZerologAdapter) Errorw(msg string, keysAndValues ...interface{}) {
	z.emit(z.logger.Error(), msg, keysAndValues)
}

func (z *ZerologAdapter) emit(ev *zerolog.Event, msg string, keysAndValues []interface{}) {
	if ev == nil {
		return
	}
	if len(keysAndValues)%2 == 1 {
		keysAndValues = append(keysAndValues, "(MISSING)")
	}
	ev.Fields(keysAndValues).Msg(msg)
}

// ParseLevel accepts debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, errors.Errorf("unknown log level %q", s)
}

type nop struct{}

func (nop) Debugw(string, ...interface{}) {}
func (nop) Infow(string, ...interface{})  {}
func (nop) Warnw(string, ...interface{})  {}
func (nop) Errorw(string, ...interface{}) {}

// Nop discards everything.
func Nop() Logger { return nop{} }

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewZerolog builds the console-format zerolog logger used by the database
// and metrics managers.
func NewZerolog(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", ServiceName).Logger()
}

// DispatcherLogger feeds dispatcher events into zerolog. Key/value pairs
// become zerolog fields; a trailing key without a value is dropped.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { l.emit(l.logger.Debug(), msg, kv) }
func (l *DispatcherLogger) Info(msg string, kv ...any)  { l.emit(l.logger.Info(), msg, kv) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { l.emit(l.logger.Error(), msg, kv) }

func (l *DispatcherLogger) emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if err, isErr := kv[i+1].(error); isErr {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

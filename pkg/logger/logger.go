package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates the process logger. Development gets coloured console output
// at debug level; every other environment writes JSON at info level, except
// test which also logs debug.
func New(serviceName string, environment string) *Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel

	switch environment {
	case "development":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	case "test":
		level = zerolog.DebugLevel
	}

	return build(out, serviceName).withLevel(level)
}

// NewWithWriter creates a logger that writes JSON to w. Used by tests that assert on log output.
func NewWithWriter(serviceName string, w io.Writer) *Logger {
	return build(w, serviceName)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func build(w io.Writer, serviceName string) *Logger {
	return &Logger{Logger: zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()}
}

func (l *Logger) withLevel(level zerolog.Level) *Logger {
	return &Logger{Logger: l.Logger.Level(level)}
}

// WithComponent tags every line with the subsystem that wrote it
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}

// ForItem scopes a logger to one inventory item
func (l *Logger) ForItem(itemID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("item_id", itemID).Logger()}
}

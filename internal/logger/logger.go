// Package logger owns the process-wide zerolog instance.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the shared process logger. Its zero value is disabled, so
// packages may log before Init without effect.
var Logger zerolog.Logger

// Init sets the global level and builds the shared logger. An
// unparseable level falls back to info.
func Init(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", lvl.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger tagged with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithAlarm returns a logger tagged with the alarm name.
func WithAlarm(name string) zerolog.Logger {
	return Logger.With().Str("alarm", name).Logger()
}

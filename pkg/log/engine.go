package log

import (
	"strings"

	"github.com/rs/zerolog"
)

// EngineLogger routes the printf-style loggers of embedded storage engines
// (pebble, badger) into zerolog.
type EngineLogger struct {
	Logger zerolog.Logger
}

func (l EngineLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Debug().Msgf(trim(format), args...)
}

func (l EngineLogger) Infof(format string, args ...interface{}) {
	l.Logger.Info().Msgf(trim(format), args...)
}

func (l EngineLogger) Warningf(format string, args ...interface{}) {
	l.Logger.Warn().Msgf(trim(format), args...)
}

func (l EngineLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msgf(trim(format), args...)
}

// Fatalf does not return.
func (l EngineLogger) Fatalf(format string, args ...interface{}) {
	l.Logger.Fatal().Msgf(trim(format), args...)
}

func trim(format string) string {
	return strings.TrimRight(format, "\n")
}

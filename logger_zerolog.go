package identity

import "github.com/rs/zerolog"

// zerologAdapter bridges a zerolog.Logger to the Logger interface
type zerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter wraps a zerolog logger so hosts running zerolog
// pipe module logs through their existing sinks.
func NewZerologAdapter(log zerolog.Logger) Logger {
	return &zerologAdapter{log: log}
}

var _ Logger = (*zerologAdapter)(nil)

func (z *zerologAdapter) Debug(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z *zerologAdapter) Info(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z *zerologAdapter) Error(format string, args ...any) {
	z.log.Error().Msgf(format, args...)
}

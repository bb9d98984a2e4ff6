package log

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter exposes a zerolog.Logger through the printf-style Logger
// interfaces of the keyvalue and sentinel packages.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{
		logger: logger,
	}
}

// Named returns an adapter over the default output tagged with name.
func Named(name string) *ZerologAdapter {
	return &ZerologAdapter{logger: NewLogger(name, nil).logger}
}

func (z *ZerologAdapter) Debugf(format string, args ...any) {
	z.logger.Debug().Msgf(format, args...)
}

func (z *ZerologAdapter) Infof(format string, args ...any) {
	z.logger.Info().Msgf(format, args...)
}

func (z *ZerologAdapter) Warnf(format string, args ...any) {
	z.logger.Warn().Msgf(format, args...)
}

func (z *ZerologAdapter) Errorf(format string, args ...any) {
	z.logger.Error().Msgf(format, args...)
}

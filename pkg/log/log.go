package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

type ZeroLogger struct {
	logger zerolog.Logger
	name   string
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}

	// stdout carries decoded changes and sink output, logs go to stderr
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
}

func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetLevel parses a level name such as "debug" or "warn" and applies it globally.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// SetOutput redirects the package-level logger.
func SetOutput(output io.Writer) {
	defaultLogger = NewLogger("default", output)
}

// NewLogger writes to output, stderr when nil. The caller field names the
// code calling the printf-style methods, not this package.
func NewLogger(name string, output io.Writer) *ZeroLogger {
	if output == nil {
		output = os.Stderr
	}
	return &ZeroLogger{
		logger: zerolog.New(output).With().
			Timestamp().
			Str("logger", name).
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Logger(),
		name: name,
	}
}

func (l *ZeroLogger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *ZeroLogger) Infof(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}

func (l *ZeroLogger) Warnf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *ZeroLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

var defaultLogger = NewLogger("default", nil)

func Debugf(format string, args ...any) {
	defaultLogger.logger.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	defaultLogger.logger.Error().Msgf(format, args...)
}

// Fatalf logs and exits with status 1.
func Fatalf(format string, args ...any) {
	defaultLogger.logger.Fatal().Msgf(format, args...)
}

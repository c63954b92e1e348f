package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the global logger instance used throughout the bridge.
var Logger zerolog.Logger

type LogLevel string

const (
	// LevelDebug enables debug level logging
	LevelDebug LogLevel = "debug"
	// LevelInfo enables info level logging
	LevelInfo LogLevel = "info"
	// LevelWarn enables warn level logging
	LevelWarn LogLevel = "warn"
	// LevelError enables error level logging
	LevelError LogLevel = "error"
)

func init() {
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Configure sets up the global logger with the specified level and output.
func Configure(level LogLevel, isDev bool) {
	var zeroLevel zerolog.Level
	switch level {
	case LevelDebug:
		zeroLevel = zerolog.DebugLevel
	case LevelInfo:
		zeroLevel = zerolog.InfoLevel
	case LevelWarn:
		zeroLevel = zerolog.WarnLevel
	case LevelError:
		zeroLevel = zerolog.ErrorLevel
	default:
		zeroLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(zeroLevel)

	var writer io.Writer = os.Stderr
	if isDev {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			FormatTimestamp: func(i interface{}) string {
				if ts, ok := i.(string); ok {
					if t, err := time.Parse(time.RFC3339, ts); err == nil {
						return fmt.Sprintf("%s |", t.Format("15:04:05"))
					}
				}
				return fmt.Sprintf("%s |", i)
			},
		}
	}

	Logger = zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = Logger
}

// GetLogLevelFromEnv determines log level from environment variables.
func GetLogLevelFromEnv() LogLevel {
	debug := os.Getenv("DEBUG")
	if strings.ToLower(debug) == "true" || debug == "1" {
		return LevelDebug
	}
	return LevelInfo
}

// Debugf logs a formatted message at debug level
func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

// Infof logs a formatted message at info level
func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

// Warnf logs a formatted message at warn level
func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

// Errorf logs a formatted message at error level
func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}

// Fatalf logs a formatted message at fatal level and exits
func Fatalf(format string, args ...interface{}) {
	Logger.Fatal().Msgf(format, args...)
}

// WithField creates a logger with a field
func WithField(key string, value interface{}) zerolog.Logger {
	return Logger.With().Interface(key, value).Logger()
}

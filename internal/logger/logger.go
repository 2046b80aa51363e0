package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the application logger instance
var Logger zerolog.Logger

// Init initializes the logger on stdout (server and worker)
func Init(level, format string) zerolog.Logger {
	return InitWithWriter(os.Stdout, level, format)
}

// InitWithWriter initializes the logger on out. The CLI logs to stderr so
// command output stays machine-readable.
func InitWithWriter(out io.Writer, level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))

	if strings.ToLower(format) == "json" {
		Logger = zerolog.New(out).With().
			Timestamp().
			Caller().
			Logger()
	} else {
		// Console format with colors
		output := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
		Logger = zerolog.New(output).With().
			Timestamp().
			Caller().
			Logger()
	}

	log.Logger = Logger
	return Logger
}

// ParseLevel parses a string log level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the configured logger instance
func GetLogger() zerolog.Logger {
	return Logger
}

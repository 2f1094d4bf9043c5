package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the zerolog global logger. LOG_LEVEL wins over level.
func Init(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	var out io.Writer = os.Stderr
	if os.Getenv("LOG_FORMAT") != "json" {
		// Human-friendly output for terminal; set LOG_FORMAT=json for production.
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = log.Output(out)
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// SetLevel changes the global level after config is loaded.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func ParseLevel(level string) zerolog.Level {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = l
	}
	switch level {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

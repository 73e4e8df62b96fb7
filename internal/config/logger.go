package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger from the logger config section.
func SetupLogger(cfg LoggerServer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := log.Logger
	if cfg.PrettyPrintConsole {
		logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	if cfg.LogCaller {
		logger = logger.With().Caller().Logger()
	}

	log.Logger = logger
}

// RequestLevelOrDefault returns the level used for per-request log lines.
func (c LoggerServer) RequestLevelOrDefault() zerolog.Level {
	level, err := zerolog.ParseLevel(c.RequestLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.DebugLevel
	}

	return level
}

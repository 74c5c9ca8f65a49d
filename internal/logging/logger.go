package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the environment variable that controls the log level.
const LevelEnv = "IMAGEGEN_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// IMAGEGEN_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	ApplyLevel()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// ApplyLevel re-reads IMAGEGEN_LOG_LEVEL, for when .env is loaded after Init.
func ApplyLevel() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnv)))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

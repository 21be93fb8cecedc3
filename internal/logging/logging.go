// Package logging wraps zerolog behind a small global-logger surface,
// scaled down from cartographus's internal/logging to what a single
// process actually needs: one global logger, configured once at
// startup from Config, plus component-scoped children.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config controls the global logger's level and output format.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // "console" or "json"
}

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	Init(Config{Level: "info", Format: "console"})
}

// Init (re)configures the global logger. Safe to call once at startup.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"

	if cfg.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
		return
	}
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the current global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With starts a child-logger builder from the global logger.
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

// Component returns a child logger tagged with a "component" field,
// the idiom used throughout this server to scope log lines to a
// subsystem (playlist, wsapi, catalog, ...).
func Component(name string) zerolog.Logger {
	return With().Str("component", name).Logger()
}

// Package sysutil holds process-level setup shared by the server binary.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel configures the global zerolog level from lvl and returns it.
// Accepted values (case-insensitive): debug, info, warn|warning, error,
// fatal, panic. Anything else selects info.
func SetLogLevel(lvl string) zerolog.Level {
	var level zerolog.Level
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// ConfigureLogging installs the global logger writing to w: JSON lines, or a
// human-readable console format when pretty is set. The logger also becomes
// the fallback for zerolog.Ctx on contexts that carry none.
func ConfigureLogging(w io.Writer, level string, pretty bool) zerolog.Logger {
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).With().Timestamp().Str("service", "support-chat").Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logger fields
const (
	PACKAGE   = "pkg"
	SERVICE   = "svc"
	FUNC      = "func"
	EVENT     = "event"
	USER      = "user"
	PEER      = "peer"
	MESSAGE   = "message_uuid"
	TOPIC     = "topic"
	REQUESTID = "request_id"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// ParseLevel maps a config level string to a zerolog level, defaulting to
// info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Init sets the global logger. format is "json" or "console".
func Init(level, format string) zerolog.Logger {
	return InitWriter(os.Stdout, level, format)
}

// InitWriter is Init with an explicit sink.
func InitWriter(w io.Writer, level, format string) zerolog.Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// For returns a child of the global logger tagged with pkg.
func For(pkg string) zerolog.Logger {
	return log.With().Str(PACKAGE, pkg).Logger()
}

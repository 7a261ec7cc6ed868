// ABOUTME: Process-wide structured logging setup
// ABOUTME: zerolog to a rotated log file, optionally mirrored to the console
package logging

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log lines go
type Config struct {
	File    string // Rotated log file; empty disables file logging
	Console bool   // Mirror to stdout (disabled while the TUI owns the terminal)
	Debug   bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup installs the global zerolog logger and returns the session id
// stamped on every line. The returned closer flushes the log file.
func Setup(cfg Config) (string, io.Closer) {
	writers := make([]io.Writer, 0, 2)

	var closer io.Closer = nopCloser{}
	var fileOut io.Writer
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
		}
		writers = append(writers, rotator)
		closer = rotator
		fileOut = rotator
	}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	session := uuid.New().String()
	log.Logger = zerolog.New(out).With().Timestamp().Str("session", session).Logger()

	active = setup{session: session, file: fileOut}
	return session, closer
}

type setup struct {
	session string
	file    io.Writer
}

var active setup

// DetachConsole stops mirroring to stdout, keeping the file and session.
// Called once a full-screen UI takes over the terminal.
func DetachConsole() {
	out := active.file
	if out == nil {
		out = io.Discard
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("session", active.session).Logger()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"depthbook/internal/config"

	"github.com/rs/zerolog"
)

// Logger is the logger type shared by every component
type Logger = zerolog.Logger

// New returns a logger configured from cfg. An unknown level falls back to info.
func New(cfg config.LoggingConfig) Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit output
func NewWithWriter(cfg config.LoggingConfig, out io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates the gateway's structured logger. Output is JSON by default
// (log-aggregator friendly); "pretty" switches to a human-readable console
// writer for development.
func New(level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "wsgate").
		Logger()
}

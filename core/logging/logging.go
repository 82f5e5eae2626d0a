// Package logging builds the zerolog loggers used across the server.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stderr. See NewWithWriter.
func New(level, env string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, level, env)
}

// NewWithWriter returns a logger at level writing to w. Development
// environments get human readable console output, everything else JSON.
func NewWithWriter(w io.Writer, level, env string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: %w", err)
		}
	}

	if strings.EqualFold(env, "development") || strings.EqualFold(env, "dev") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings come from the CLI's persistent flags and environment.
type Settings struct {
	Level   string
	LogFile string
}

// Init sets the global logger: a console writer when stderr is a terminal,
// JSON otherwise, optionally teeing into a log file.
func Init(s Settings) error {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil {
		return errors.Wrapf(err, "parsing log level %q", s.Level)
	}
	if s.Level == "" {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	if s.LogFile != "" {
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		w = io.MultiWriter(w, f)
	}

	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// TUIInit redirects all logging away from the terminal while a fullscreen
// program owns it. Returns the logger to hand to the chat components.
func TUIInit(s Settings) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "parsing log level %q", s.Level)
	}
	if s.LogFile == "" {
		return zerolog.Nop(), nil
	}
	f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), errors.Wrap(err, "opening log file")
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger(), nil
}

// Package logger configures the global zerolog logger from command line options.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a go-flags option group shared by all commands.
type Logger struct {
	Level  string `long:"log-level"  env:"LOG_LEVEL"  description:"Log level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	Format string `long:"log-format" env:"LOG_FORMAT" description:"Log format" choice:"console" choice:"json" default:"console"`
	Output string `long:"log-output" env:"LOG_OUTPUT" description:"Log output: stderr, stdout or a file path" default:"stderr"`
}

// Setup applies the options to the global logger. A log file that cannot
// be opened falls back to stderr with a warning.
func (l *Logger) Setup() {
	zerolog.SetGlobalLevel(ParseLevel(l.Level))

	w, err := l.writer()
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Err(err).Str("output", l.Output).Msg("Logging to stderr instead")
	}
}

func (l *Logger) writer() (io.Writer, error) {
	var (
		out   io.Writer = os.Stderr
		err   error
		color = true
	)

	switch l.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		var f *os.File
		// stays open for the life of the process
		f, err = os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			out = f
			color = false
		}
	}

	if l.Format == "json" {
		return out, err
	}

	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: !color}, err
}

// ParseLevel converts a level name into a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return lvl
}

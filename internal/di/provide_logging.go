package di

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
)

// ProvideLogger creates a new zerolog.Logger configured for the runtime environment.
// LOG_FORMAT=json selects JSON output; otherwise console format is used.
// LOG_LEVEL overrides the default info level. On a GitHub runner warnings and
// errors are also emitted as workflow annotations.
func ProvideLogger() zerolog.Logger {
	return NewLogger(os.Stderr, os.Getenv)
}

// NewLogger builds the logger ProvideLogger returns from an explicit writer
// and variable lookup.
func NewLogger(w io.Writer, getenv func(string) string) zerolog.Logger {
	level := zerolog.InfoLevel
	if v := getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var logger zerolog.Logger
	if strings.EqualFold(getenv("LOG_FORMAT"), "json") {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: getenv("NO_COLOR") != ""})
	}

	logger = logger.Level(level).
		With().
		Timestamp().
		Logger()

	if getenv("GITHUB_ACTIONS") == "true" {
		logger = logger.Hook(actions.NewAnnotationHook(os.Stdout))
	}

	return logger
}

package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gitea.knapp/jacoknapp/simpl/internal/config"
)

// New builds the process logger from the log section of the config.
// Debug forces the debug level regardless of log.level.
func New(cfg *config.Config, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		lvl = zerolog.InfoLevel
	}
	if cfg.Debug {
		lvl = zerolog.DebugLevel
	}
	if cfg.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

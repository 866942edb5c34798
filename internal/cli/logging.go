package cli

import (
	"fmt"
	"os"

	"github.com/dkeye/meshcall/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupFileLogging points the global logger at cfg.LogFile so log lines do
// not land on top of the call view.
func setupFileLogging(cfg *config.ClientConfig) (func(), error) {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return func() { _ = f.Close() }, nil
}

func setupConsoleLogging(cfg *config.ClientConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(config.ParseLevel(cfg.LogLevel))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

package main

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/fleetcap/fleetcap/internal/config"
)

// setupLogging configures the process-global zerolog logger: always a log
// file under the data directory, plus console output when stdout is a
// terminal.
func setupLogging(cfg *config.Config) error {
	dataDir := cfg.Core.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	zerolog.SetGlobalLevel(parseLogLevel(cfg.Core.LogLevel))

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "fleetcap.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	writers = append(writers, logFile)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "fleetcap").Logger()
	return nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// notifySignals calls cancel on SIGINT or SIGTERM. A second identical
// signal within the force window exits immediately with the signal exit
// code. The returned stop function unregisters the handler.
func notifySignals(cancel func()) (stop func()) {
	const forceWindow = 3 * time.Second

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var last os.Signal
		var lastAt time.Time
		for sig := range ch {
			if sig == last && time.Since(lastAt) < forceWindow {
				log.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
				os.Exit(exitSignal)
			}
			last, lastAt = sig, time.Now()
			log.Info().Str("signal", sig.String()).Msg("graceful cancellation requested")
			cancel()
		}
	}()

	return func() { signal.Stop(ch) }
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logConfig is read from the environment before any command runs.
type logConfig struct {
	Level string `env:"GRACE_TTS_LOG_LEVEL" envDefault:"warn"`
	File  string `env:"GRACE_TTS_LOG_FILE"`
	Debug bool   `env:"GRACE_TTS_DEBUG"`
}

func getLogFilePath() (string, error) {
	return gap.NewScope(gap.User, "grace-tts").LogPath("grace-tts.log") //nolint:wrapcheck
}

// setupLog configures the default logger. Debug mode logs to a file in the
// user log directory unless GRACE_TTS_LOG_FILE names another one.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid GRACE_TTS_LOG_LEVEL: %w", err)
	}
	if cfg.Debug {
		level = log.DebugLevel
		if cfg.File == "" {
			if cfg.File, err = getLogFilePath(); err != nil {
				return nil, err
			}
		}
	}

	if cfg.File == "" {
		log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
			Level:  level,
			Prefix: "grace-tts",
		}))
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	log.SetDefault(log.NewWithOptions(f, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}))
	return f.Close, nil
}

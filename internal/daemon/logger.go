package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// InitLogger points the global logger at the daemon log, or at stderr in
// debug mode.
func InitLogger(cfg *Config) error {
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if cfg.Debug {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		logFilePath := filepath.Join(cfg.Home, "log", "studenttester.log")
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			return fmt.Errorf("could not create log folder: %w", err)
		}
		logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("could not open log file %s: %w", logFilePath, err)
		}
		handler = slog.NewJSONHandler(logFile, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

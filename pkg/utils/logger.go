// Logging utilities shared across services
package utils

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
)

// InitLogger initializes the process-wide slog logger.
// Log level is controlled by PRDAGENT_LOG_LEVEL (debug, info, warn, error).
// If PRDAGENT_LOG_FILE is set, logs are appended there instead of stderr.
func InitLogger() {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(os.Getenv("PRDAGENT_LOG_LEVEL")) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		out := os.Stderr
		if path := os.Getenv("PRDAGENT_LOG_FILE"); path != "" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
				if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
					out = f
				}
			}
		}

		logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	})
}

// GetLogger returns the process-wide logger, initializing it if needed.
func GetLogger() *slog.Logger {
	InitLogger()
	return logger
}

// MaskSensitiveString hides the middle of a secret, keeping a short prefix
// and suffix so the value can still be recognized in config listings.
func MaskSensitiveString(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

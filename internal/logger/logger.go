package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/jwebster45206/compass-engine/internal/config"
)

// Setup configures the global slog logger based on environment
func Setup(cfg *config.Config) *slog.Logger {
	logger := New(os.Stdout, cfg)

	// Set as default logger
	slog.SetDefault(logger)

	return logger
}

// New builds a logger writing to w without touching the default
func New(w io.Writer, cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	// Configure handler based on environment
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	if cfg.Environment == "production" {
		// JSON format for production
		handler = slog.NewJSONHandler(w, opts)
	} else {
		// Text format for development
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// WithRequest scopes a logger to one queued request
func WithRequest(logger *slog.Logger, requestID, sessionID string) *slog.Logger {
	return logger.With("request_id", requestID, "session_id", sessionID)
}

package logger

import (
	"log/slog"
	"os"

	"github.com/alex-galey/dokku-deployer/pkg/config"
	"go.uber.org/fx"
)

// NewRingBufferFromConfig sizes the in-memory log tail used by the get_server_logs tool.
func NewRingBufferFromConfig(cfg *config.ServerConfig) *RingBuffer {
	return NewRingBuffer(cfg.LogBufferLines)
}

func NewSlogLogger(cfg *config.ServerConfig, buffer *RingBuffer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	if buffer != nil {
		handler = newBufferingHandler(handler, buffer)
	}

	return slog.New(handler)
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var Module = fx.Module("logger",
	fx.Provide(NewRingBufferFromConfig),
	fx.Provide(NewSlogLogger),
)

package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services receive it via
// functional options so tests can inject their own.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

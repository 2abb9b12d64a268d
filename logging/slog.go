package logging

import (
	"io"
	"log/slog"
)

// NewSlog returns a text slog logger writing to w at level. *slog.Logger
// already has the Info/Error/Warn/Debug methods modkit expects.
func NewSlog(w io.Writer, level Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.SlogLevel()}))
}

// NewJSONSlog is NewSlog with JSON output.
func NewJSONSlog(w io.Writer, level Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.SlogLevel()}))
}

package observe

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a config level name to a [slog.Level]. Unknown names map
// to [slog.LevelInfo].
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// NewLogger returns a text logger writing to w whose level follows lv.
// Changing lv later adjusts the level of the returned logger.
func NewLogger(w io.Writer, lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv}))
}

package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process-wide JSON logger. Debug mode lowers the level and
// adds source locations.
func New(mode string) *slog.Logger {
	return newWithWriter(os.Stdout, mode)
}

func newWithWriter(w io.Writer, mode string) *slog.Logger {
	level := slog.LevelInfo
	if mode == "debug" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: mode == "debug",
	})
	return slog.New(handler)
}

// Init installs the logger as the slog default and returns it.
func Init(mode string) *slog.Logger {
	l := New(mode)
	slog.SetDefault(l)
	l.Info("structured logging initialized", "mode", mode)
	return l
}

// Nop discards everything. Used when a component is built without a logger.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

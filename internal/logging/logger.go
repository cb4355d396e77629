package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 100
	maxLogBackups = 5
	maxLogAgeDays = 28
)

// New creates a JSON slog logger configured at the provided level. If the
// level string is invalid it defaults to info. When file is set, output goes
// to a size-rotated file instead of stdout.
func New(level, file string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(Output(file), &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// Output returns stdout, or a rotating writer for the given path.
func Output(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls Setup.
type Options struct {
	// Level is one of DEBUG, INFO, WARN, ERROR. Defaults to INFO.
	Level string
	// File, when set, receives a rotated copy of every log line.
	File string
}

// Setup configures the global slog default with a JSON handler.
// ERROR-level logs automatically include a stack trace.
// The returned closer flushes the log file, if any.
func Setup(opts Options) io.Closer {
	w, closer := output(opts.File)
	slog.SetDefault(slog.New(newHandler(w, parseLevel(opts.Level))))
	return closer
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	json := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return &stackHandler{Handler: json}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func output(file string) (io.Writer, io.Closer) {
	if file == "" {
		return os.Stdout, nopCloser{}
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		slog.Warn("log directory unavailable, logging to stdout only", "file", file, "error", err)
		return os.Stdout, nopCloser{}
	}
	rotated := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated), rotated
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Fatal logs at Error level and exits with code 1.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// stackHandler wraps a slog.Handler and appends a stack trace for ERROR+.
type stackHandler struct {
	slog.Handler
}

func (h *stackHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		r.AddAttrs(slog.String("stacktrace", string(buf[:n])))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stackHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *stackHandler) WithGroup(name string) slog.Handler {
	return &stackHandler{Handler: h.Handler.WithGroup(name)}
}

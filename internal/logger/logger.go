package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const levelFatal = slog.Level(12)

var (
	mu          sync.RWMutex
	base        = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	development bool
)

// Init configures the process-wide JSON logger. In development mode debug
// records are emitted and error detail is kept in logs.
func Init(dev bool) {
	InitWithWriter(os.Stdout, dev)
}

// InitWithWriter is Init with an explicit sink, used by tests.
func InitWithWriter(w io.Writer, dev bool) {
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}

	mu.Lock()
	base = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	development = dev
	mu.Unlock()

	Info("logger initialized", map[string]any{"development": dev})
}

// Development reports whether full error detail may be logged.
func Development() bool {
	mu.RLock()
	defer mu.RUnlock()
	return development
}

// ErrorDetail returns err's text in development. Otherwise it returns only
// the leading "package: operation" segments of the message, such as
// "session: get" or "session: bad token signature", and drops everything
// from the first segment that could carry an address, identifier or input.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	if Development() {
		return err.Error()
	}
	return errorClass(err.Error())
}

const maxClassSegments = 6

func errorClass(msg string) string {
	var kept []string
	for _, seg := range strings.Split(msg, ": ") {
		if len(kept) == maxClassSegments || !plainSegment(seg) {
			break
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "redacted"
	}
	return strings.Join(kept, ": ")
}

// plainSegment reports whether s is lowercase words only.
func plainSegment(s string) bool {
	if s == "" || len(s) > 48 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == ' ', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func Debug(msg string, fields map[string]any) {
	log(slog.LevelDebug, msg, fields)
}

func Info(msg string, fields map[string]any) {
	log(slog.LevelInfo, msg, fields)
}

func Warn(msg string, fields map[string]any) {
	log(slog.LevelWarn, msg, fields)
}

func Error(msg string, fields map[string]any) {
	log(slog.LevelError, msg, fields)
}

func Fatal(msg string, fields map[string]any) {
	log(levelFatal, msg, fields)
	os.Exit(1)
}

func log(level slog.Level, msg string, fields map[string]any) {
	mu.RLock()
	l := base
	mu.RUnlock()

	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Log(context.Background(), level, msg, attrs...)
}

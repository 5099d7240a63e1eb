// Package logger provides leveled, component-tagged logging for relayclaw.
// It wraps log/slog so output can be swapped between text (stderr) and JSON
// without touching call sites.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level mirrors slog levels with shorter names for call sites.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu       sync.Mutex
	levelVar slog.LevelVar
	handler  atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	handler.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar})))
}

func toSlog(l Level) slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel sets the minimum level emitted by the package-level logger.
func SetLevel(l Level) {
	levelVar.Set(toSlog(l))
}

// SetOutput redirects log output, optionally switching to JSON format.
func SetOutput(w io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()
	opts := &slog.HandlerOptions{Level: &levelVar}
	if json {
		handler.Store(slog.New(slog.NewJSONHandler(w, opts)))
		return
	}
	handler.Store(slog.New(slog.NewTextHandler(w, opts)))
}

func logCF(level slog.Level, component, msg string, fields map[string]any) {
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	handler.Load().Log(context.Background(), level, msg, args...)
}

// DebugCF logs a debug message tagged with a component and structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	logCF(slog.LevelDebug, component, msg, fields)
}

// InfoCF logs an info message tagged with a component and structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	logCF(slog.LevelInfo, component, msg, fields)
}

// WarnCF logs a warning tagged with a component and structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	logCF(slog.LevelWarn, component, msg, fields)
}

// ErrorCF logs an error tagged with a component and structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	logCF(slog.LevelError, component, msg, fields)
}

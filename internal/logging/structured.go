package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	opFile       *os.File
	currentOpFmt = "text"
)

// InitStructured reconfigures the operational logger based on format settings.
// format: "text" (default) or "json" (Loki/ELK compatible)
// level: "debug", "info", "warn", "error"
func InitStructured(format, level string) {
	SetLevelFromString(level)
	currentOpFmt = format
	rebuildOpLogger(os.Stderr)
}

// SetOutputFile redirects the operational logger to path, creating its
// parent directory if needed. An empty path is a no-op; a previously
// opened file is closed before switching to the new one.
func SetOutputFile(path string) error {
	if path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("logging: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}
	old := opFile
	opFile = f
	rebuildOpLogger(f)
	if old != nil {
		old.Close()
	}
	return nil
}

func rebuildOpLogger(w *os.File) {
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	switch currentOpFmt {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	opLogger.Store(logger)
}

// OpWithTrace returns the operational logger with trace context fields.
// traceID and spanID are injected as attributes when available.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}

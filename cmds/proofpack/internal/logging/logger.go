package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	EventKey     = "event"
	RunIDKey     = "run_id"
	TimestampKey = "timestamp"
)

var levels = map[string]slog.Level{
	"":      slog.LevelInfo,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New builds a JSON event logger writing to w. A nil writer discards events,
// since stdout and stderr belong to the verifier report.
func New(w io.Writer, level string) (*slog.Logger, error) {
	parsedLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return Discard(), nil
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parsedLevel,
		ReplaceAttr: renameTime,
	})), nil
}

// Open returns a logger appending JSON events to path, or a discarding
// logger when path is empty. The returned closer is always non-nil.
func Open(path string, level string) (*slog.Logger, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		logger, err := New(nil, level)
		return logger, nopCloser{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	logger, err := New(f, level)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger, f, nil
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithRun tags every event of logger with the run id.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With(slog.String(RunIDKey, runID))
}

// Event logs one named event; the name is repeated under EventKey so JSON
// consumers can filter without parsing msg.
func Event(logger *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logger == nil || !logger.Enabled(context.Background(), level) {
		return
	}

	record := make([]slog.Attr, 0, len(attrs)+1)
	record = append(record, slog.String(EventKey, event))
	record = append(record, attrs...)
	logger.LogAttrs(context.Background(), level, event, record...)
}

func ParseLevel(level string) (slog.Level, error) {
	parsed, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
	return parsed, nil
}

func renameTime(_ []string, attribute slog.Attr) slog.Attr {
	if attribute.Key == slog.TimeKey {
		attribute.Key = TimestampKey
	}
	return attribute
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

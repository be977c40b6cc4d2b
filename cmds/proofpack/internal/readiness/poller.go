package readiness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
)

const (
	DefaultInterval       = 200 * time.Millisecond
	DefaultRequestTimeout = 1500 * time.Millisecond
	DefaultHistorySize    = 20
)

// LogSource is the captured output scanned for fatal patterns.
type LogSource interface {
	Find(patterns []string) (pattern string, line string, ok bool)
}

// FatalLogError reports a captured log line that can never self-resolve.
type FatalLogError struct {
	Pattern string
	Line    string
}

func (e *FatalLogError) Error() string {
	return fmt.Sprintf("fatal log line matched %q: %s", e.Pattern, e.Line)
}

type Options struct {
	Logs          LogSource
	FatalPatterns []string
}

// Poller issues bounded GET requests until one succeeds. Only the caller's
// context ends polling; failed attempts are recorded and retried.
type Poller struct {
	Client         *http.Client
	Interval       time.Duration
	RequestTimeout time.Duration
	HistorySize    int
	Logger         *slog.Logger

	mu      sync.Mutex
	history []string
}

func (poller *Poller) WaitFor(ctx context.Context, url string, options Options) error {
	interval := poller.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if options.Logs != nil {
			if pattern, line, ok := options.Logs.Find(options.FatalPatterns); ok {
				return &FatalLogError{Pattern: pattern, Line: line}
			}
		}

		status, ok := poller.probe(ctx, url)
		poller.record(status)
		logging.Event(
			poller.Logger,
			slog.LevelDebug,
			"poll_attempt",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.String("status", status),
		)
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// History returns the most recent attempt results, oldest first.
func (poller *Poller) History() []string {
	poller.mu.Lock()
	defer poller.mu.Unlock()
	return append([]string(nil), poller.history...)
}

func (poller *Poller) probe(ctx context.Context, url string) (string, bool) {
	timeout := poller.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("request error: %v", err), false
	}

	client := poller.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return fmt.Sprintf("dial error: %v", err), false
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 64*1024))

	return response.Status, response.StatusCode >= 200 && response.StatusCode < 300
}

func (poller *Poller) record(status string) {
	size := poller.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}

	poller.mu.Lock()
	defer poller.mu.Unlock()
	poller.history = append(poller.history, status)
	if overflow := len(poller.history) - size; overflow > 0 {
		poller.history = append([]string(nil), poller.history[overflow:]...)
	}
}

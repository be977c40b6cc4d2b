package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contract"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
)

const defaultNavigationTimeout = 30 * time.Second

// RodDriver visits pages in headless Chrome over the DevTools protocol.
// With an empty ControlURL it launches, and always kills, its own browser.
type RodDriver struct {
	Bin        string
	ControlURL string
	Logger     *slog.Logger
}

func (driver *RodDriver) Visit(ctx context.Context, request contract.VisitRequest) (contract.Capture, error) {
	controlURL := driver.ControlURL
	if controlURL == "" {
		launch := launcher.New().Context(ctx).Headless(true)
		if driver.Bin != "" {
			launch = launch.Bin(driver.Bin)
		}
		defer func() {
			launch.Kill()
			launch.Cleanup()
		}()

		launched, err := launch.Launch()
		if err != nil {
			return contract.Capture{}, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = launched
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return contract.Capture{}, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return contract.Capture{}, fmt.Errorf("open page: %w", err)
	}

	recorder := &recorder{}
	eventCtx, stopEvents := context.WithCancel(ctx)
	// EachEvent subscribes immediately, so nothing sent by the first
	// navigation is missed.
	wait := page.Context(eventCtx).EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request != nil {
				recorder.request(ev.Request.URL)
			}
		},
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError && ev.Type != proto.RuntimeConsoleAPICalledTypeWarning {
				return
			}
			recorder.console(fmt.Sprintf("%s: %s", ev.Type, stringifyConsoleArgs(ev.Args)))
		},
		func(ev *proto.RuntimeExceptionThrown) {
			recorder.pageError(exceptionText(ev.ExceptionDetails))
		},
	)
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		wait()
	}()
	defer func() {
		stopEvents()
		<-eventsDone
	}()

	navigationTimeout := request.NavigationTimeout
	if navigationTimeout <= 0 {
		navigationTimeout = defaultNavigationTimeout
	}

	for _, url := range request.URLs {
		navigation := page.Context(ctx).Timeout(navigationTimeout)
		if err := navigation.Navigate(url); err != nil {
			return recorder.snapshot(), fmt.Errorf("navigate %s: %w", url, err)
		}
		if err := navigation.WaitLoad(); err != nil {
			return recorder.snapshot(), fmt.Errorf("wait for load %s: %w", url, err)
		}
		navigation.CancelTimeout()
		recorder.visited(url)
		logging.Event(driver.Logger, slog.LevelDebug, "route_visited", slog.String("url", url))

		if err := settle(ctx, request.Settle); err != nil {
			return recorder.snapshot(), err
		}
	}

	return recorder.snapshot(), nil
}

func settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// recorder collects events delivered on rod's event goroutine.
type recorder struct {
	mu       sync.Mutex
	routes   []string
	requests []string
	consoles []string
	errors   []string
}

func (r *recorder) request(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, url)
}

func (r *recorder) console(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoles = append(r.consoles, message)
}

func (r *recorder) pageError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) visited(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, url)
}

func (r *recorder) snapshot() contract.Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return contract.Capture{
		RoutesVisited:   append(make([]string, 0, len(r.routes)), r.routes...),
		RequestURLs:     append(make([]string, 0, len(r.requests)), r.requests...),
		ConsoleMessages: append(make([]string, 0, len(r.consoles)), r.consoles...),
		PageErrors:      append(make([]string, 0, len(r.errors)), r.errors...),
	}
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if !arg.Value.Nil() {
			parts = append(parts, arg.Value.String())
			continue
		}
		if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(details *proto.RuntimeExceptionDetails) string {
	if details == nil {
		return "unknown exception"
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	if details.Text != "" {
		return details.Text
	}
	return "unknown exception"
}

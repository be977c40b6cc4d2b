package contract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeDriver struct {
	capture Capture
	err     error
	got     VisitRequest
}

func (driver *fakeDriver) Visit(ctx context.Context, request VisitRequest) (Capture, error) {
	driver.got = request
	return driver.capture, driver.err
}

func TestProveNetworkMatchesBackendOrigin(t *testing.T) {
	driver := &fakeDriver{capture: Capture{
		RoutesVisited: []string{"http://127.0.0.1:5173/"},
		RequestURLs: []string{
			"http://127.0.0.1:5173/",
			"http://127.0.0.1:5173/src/main.tsx",
			"http://127.0.0.1:3001/api/campaigns?limit=10",
		},
	}}
	request := VisitRequest{URLs: []string{"http://127.0.0.1:5173/"}, NavigationTimeout: time.Second}

	proof, capture, err := ProveNetwork(context.Background(), driver, request, "http://127.0.0.1:3001")
	if err != nil {
		t.Fatalf("ProveNetwork returned error: %v", err)
	}
	if len(proof.Matched) != 1 || proof.Matched[0] != "http://127.0.0.1:3001/api/campaigns?limit=10" {
		t.Fatalf("unexpected matched: %v", proof.Matched)
	}
	if len(proof.AllIntercepted) != 3 {
		t.Fatalf("unexpected intercepted: %v", proof.AllIntercepted)
	}
	if len(capture.RoutesVisited) != 1 || driver.got.URLs[0] != "http://127.0.0.1:5173/" {
		t.Fatalf("unexpected visit: capture=%+v request=%+v", capture, driver.got)
	}
}

func TestProveNetworkFailsWithEveryInterceptedURL(t *testing.T) {
	intercepted := []string{
		"http://127.0.0.1:5173/",
		"http://127.0.0.1:5173/mock/campaigns.json",
		"http://127.0.0.1:30010/api/health",
	}
	driver := &fakeDriver{capture: Capture{RequestURLs: intercepted}}

	proof, _, err := ProveNetwork(context.Background(), driver, VisitRequest{}, "http://127.0.0.1:3001")
	var violationErr *ViolationError
	if !errors.As(err, &violationErr) {
		t.Fatalf("expected ViolationError, got=%v", err)
	}
	for _, url := range intercepted {
		if !strings.Contains(violationErr.Detail, url) {
			t.Fatalf("diagnostic missing %s: %s", url, violationErr.Detail)
		}
	}
	if len(proof.Matched) != 0 {
		t.Fatalf("unexpected matched: %v", proof.Matched)
	}
}

func TestProveNetworkWithNoRequests(t *testing.T) {
	_, _, err := ProveNetwork(context.Background(), &fakeDriver{}, VisitRequest{}, "http://127.0.0.1:3001")
	if err == nil || !strings.Contains(err.Error(), "(none)") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProveNetworkWrapsDriverErrors(t *testing.T) {
	boom := errors.New("chrome crashed")
	_, _, err := ProveNetwork(context.Background(), &fakeDriver{err: boom}, VisitRequest{}, "http://127.0.0.1:3001")
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMatchOrigin(t *testing.T) {
	testCases := []struct {
		url  string
		want bool
	}{
		{url: "http://127.0.0.1:3001", want: true},
		{url: "http://127.0.0.1:3001/", want: true},
		{url: "http://127.0.0.1:3001?x=1", want: true},
		{url: "http://127.0.0.1:30010/api", want: false},
		{url: "https://127.0.0.1:3001/api", want: false},
		{url: "http://localhost:3001/api", want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.url, func(t *testing.T) {
			proof := MatchOrigin("http://127.0.0.1:3001/", []string{tc.url})
			if got := len(proof.Matched) == 1; got != tc.want {
				t.Fatalf("unexpected match: got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestSummarizeCapsConsoleMessages(t *testing.T) {
	capture := Capture{}
	for i := 0; i < 25; i++ {
		capture.ConsoleMessages = append(capture.ConsoleMessages, "warning")
	}

	summary := Summarize(capture, NetworkProof{BackendOrigin: "http://127.0.0.1:3001"})
	if len(summary.ConsoleWarningsOrErrorsFirst20) != 20 {
		t.Fatalf("unexpected console count: %d", len(summary.ConsoleWarningsOrErrorsFirst20))
	}
	if summary.RoutesVisited == nil || summary.PageErrors == nil {
		t.Fatal("slices must be non-nil so they render as []")
	}
}

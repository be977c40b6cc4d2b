package contract

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const consoleMessageLimit = 20

// VisitRequest describes the pages a PageDriver loads. Listeners must be
// attached before the first navigation.
type VisitRequest struct {
	URLs              []string
	NavigationTimeout time.Duration
	Settle            time.Duration
}

// Capture is everything a PageDriver observed while visiting.
type Capture struct {
	RoutesVisited   []string
	RequestURLs     []string
	ConsoleMessages []string
	PageErrors      []string
}

// PageDriver loads pages in a real browser and records their traffic.
type PageDriver interface {
	Visit(ctx context.Context, request VisitRequest) (Capture, error)
}

type NetworkProof struct {
	BackendOrigin  string   `json:"backendOrigin"`
	Matched        []string `json:"matched"`
	AllIntercepted []string `json:"allIntercepted"`
}

// RuntimeSummary is the success payload of the runtime verifier.
type RuntimeSummary struct {
	RoutesVisited                  []string     `json:"routesVisited"`
	ConsoleWarningsOrErrorsFirst20 []string     `json:"consoleWarningsOrErrorsFirst20"`
	PageErrors                     []string     `json:"pageErrors"`
	NetworkProof                   NetworkProof `json:"networkProof"`
}

// ProveNetwork visits the frontend and requires at least one intercepted
// request to target backendOrigin.
func ProveNetwork(ctx context.Context, driver PageDriver, request VisitRequest, backendOrigin string) (NetworkProof, Capture, error) {
	capture, err := driver.Visit(ctx, request)
	if err != nil {
		return NetworkProof{}, capture, fmt.Errorf("visit frontend: %w", err)
	}

	proof := MatchOrigin(backendOrigin, capture.RequestURLs)
	if len(proof.Matched) == 0 {
		intercepted := "(none)"
		if len(proof.AllIntercepted) > 0 {
			intercepted = strings.Join(proof.AllIntercepted, ", ")
		}
		return proof, capture, violation(
			"network",
			"no intercepted request reached %s; intercepted %d: %s",
			backendOrigin,
			len(proof.AllIntercepted),
			intercepted,
		)
	}
	return proof, capture, nil
}

// MatchOrigin selects the URLs that address origin. A port that merely
// shares a prefix (":3001" vs ":30010") does not match.
func MatchOrigin(origin string, urls []string) NetworkProof {
	origin = strings.TrimRight(origin, "/")
	proof := NetworkProof{
		BackendOrigin:  origin,
		Matched:        make([]string, 0),
		AllIntercepted: append(make([]string, 0, len(urls)), urls...),
	}
	for _, url := range urls {
		if !strings.HasPrefix(url, origin) {
			continue
		}
		rest := url[len(origin):]
		if rest == "" || strings.ContainsAny(rest[:1], "/?#") {
			proof.Matched = append(proof.Matched, url)
		}
	}
	return proof
}

func Summarize(capture Capture, proof NetworkProof) RuntimeSummary {
	console := capture.ConsoleMessages
	if len(console) > consoleMessageLimit {
		console = console[:consoleMessageLimit]
	}
	return RuntimeSummary{
		RoutesVisited:                  nonNil(capture.RoutesVisited),
		ConsoleWarningsOrErrorsFirst20: nonNil(console),
		PageErrors:                     nonNil(capture.PageErrors),
		NetworkProof:                   proof,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return make([]string, 0)
	}
	return values
}

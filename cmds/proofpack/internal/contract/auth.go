package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxAuthBodyBytes = 1 << 20

// ViolationError reports a running stack that answers but breaks a contract.
type ViolationError struct {
	Check  string
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s contract violated: %s", e.Check, e.Detail)
}

type AuthResult struct {
	Status   int
	Identity map[string]any
	HasID    bool
}

// CheckAuth requires a 2xx JSON object carrying a non-empty string id.
func CheckAuth(ctx context.Context, client *http.Client, url string) (AuthResult, error) {
	if client == nil {
		client = http.DefaultClient
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AuthResult{}, fmt.Errorf("build auth request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return AuthResult{}, fmt.Errorf("request auth endpoint: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxAuthBodyBytes))
	if err != nil {
		return AuthResult{}, fmt.Errorf("read auth response: %w", err)
	}

	result := AuthResult{Status: response.StatusCode}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return result, violation("auth", "GET %s returned %s", url, response.Status)
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return result, violation("auth", "GET %s body is not JSON: %s", url, excerpt(body))
	}
	identity, ok := decoded.(map[string]any)
	if !ok {
		return result, violation("auth", "GET %s body is not a JSON object: %s", url, excerpt(body))
	}
	result.Identity = identity

	id, ok := identity["id"].(string)
	if !ok || id == "" {
		return result, violation("auth", "GET %s identity lacks a non-empty string id: %s", url, excerpt(body))
	}
	result.HasID = true
	return result, nil
}

func violation(check string, format string, args ...any) *ViolationError {
	return &ViolationError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

func excerpt(body []byte) string {
	const limit = 200
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	if text == "" {
		return "<empty>"
	}
	return text
}

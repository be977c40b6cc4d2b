package testutil

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// FreePort returns a loopback TCP port that was free a moment ago.
func FreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// DevDB writes a non-empty, non-SQLite dev data file and returns its path.
func DevDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dev.db")
	if err := os.WriteFile(path, []byte("seeded"), 0o600); err != nil {
		t.Fatalf("write dev db: %v", err)
	}
	return path
}

// HelperCommand builds a shell command that re-executes the test binary into
// the named helper test with mode and args after "--".
func HelperCommand(t *testing.T, helperTest string, mode string, args ...string) string {
	t.Helper()

	testBinary, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable returned error: %v", err)
	}
	parts := []string{strconv.Quote(testBinary), "-test.run=^" + helperTest + "$", "--", mode}
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}

// HelperMode extracts the mode and its args from a helper process argv.
func HelperMode(args []string) (string, []string) {
	for i, arg := range args {
		if arg == "--" && i+1 < len(args) {
			return args[i+1], args[i+2:]
		}
	}
	return "", nil
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition was not met within %s", timeout)
}

// Env returns a getenv function backed by values.
func Env(values map[string]string) func(string) string {
	return func(name string) string {
		return values[name]
	}
}

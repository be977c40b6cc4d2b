package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/config"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contract"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/devdata"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/phase"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/portprobe"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/readiness"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		wantKind  contracts.ProofpackOutcomeKind
		wantPhase contracts.ProofpackPhase
		wantExit  int
	}{
		{name: "nil", err: nil, wantKind: contracts.ProofpackOutcomeSuccess, wantExit: 0},
		{name: "missing dev data", err: &devdata.MissingError{Path: "dev.db", Reason: "file is empty"}, wantKind: contracts.ProofpackOutcomeMissingDevData, wantExit: 2},
		{
			name:      "wrapped phase timeout",
			err:       fmt.Errorf("wait for backend: %w", &phase.TimeoutError{Label: "backendHealth", Timeout: 20 * time.Second}),
			wantKind:  contracts.ProofpackOutcomePhaseTimeout,
			wantPhase: contracts.ProofpackPhaseBackendHealth,
			wantExit:  1,
		},
		{name: "contract violation", err: &contract.ViolationError{Check: "auth", Detail: "bad"}, wantKind: contracts.ProofpackOutcomeContractViolation, wantExit: 1},
		{name: "fatal log", err: &readiness.FatalLogError{Pattern: "Cannot find module", Line: "x"}, wantKind: contracts.ProofpackOutcomeProcessError, wantExit: 1},
		{name: "port in use", err: &portprobe.PortInUseError{Host: "127.0.0.1", Port: 3001}, wantKind: contracts.ProofpackOutcomeProcessError, wantExit: 1},
		{name: "missing config", err: &config.MissingEnvError{Names: []string{config.EnvDevCommand}}, wantKind: contracts.ProofpackOutcomeProcessError, wantExit: 1},
		{name: "plain", err: errors.New("spawn failed"), wantKind: contracts.ProofpackOutcomeProcessError, wantExit: 1},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			outcome := Classify(tc.err)
			if outcome.Kind != tc.wantKind {
				t.Fatalf("unexpected kind: got=%s want=%s", outcome.Kind, tc.wantKind)
			}
			if outcome.Phase != tc.wantPhase {
				t.Fatalf("unexpected phase: got=%s want=%s", outcome.Phase, tc.wantPhase)
			}
			if outcome.ExitCode() != tc.wantExit {
				t.Fatalf("unexpected exit code: got=%d want=%d", outcome.ExitCode(), tc.wantExit)
			}
		})
	}
}

func TestReportMissingDevData(t *testing.T) {
	reporter, stdout, stderr := newReporter(contracts.ProofpackCheckRuntime)

	code := reporter.Report(Classify(&devdata.MissingError{Path: "dev.db", Reason: "file does not exist"}), Diagnostics{})
	if code != 2 {
		t.Fatalf("unexpected exit code: got=%d want=2", code)
	}
	if stdout.String() != "MISSING_DEV_DATA: run npm run bootstrap\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestReportBackendHealthTimeout(t *testing.T) {
	reporter, stdout, stderr := newReporter(contracts.ProofpackCheckBackendContract)
	logs := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		logs = append(logs, fmt.Sprintf("dev line %d", i))
	}

	outcome := Classify(&phase.TimeoutError{Label: "backendHealth", Timeout: 20000 * time.Millisecond})
	code := reporter.Report(outcome, Diagnostics{Logs: logs, StatusHistory: []string{"503 Service Unavailable"}})
	if code != 1 {
		t.Fatalf("unexpected exit code: got=%d want=1", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}

	lines := strings.Split(strings.TrimRight(stderr.String(), "\n"), "\n")
	if lines[0] != "verify-backend-contract failed: phase:backendHealth timed out after 20000ms" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "devLogsLast50:" {
		t.Fatalf("unexpected section: %q", lines[1])
	}
	if len(lines) != 52 || lines[2] != "dev line 10" || lines[51] != "dev line 59" {
		t.Fatalf("unexpected log tail (len=%d): first=%q last=%q", len(lines), lines[2], lines[len(lines)-1])
	}
	if strings.Contains(stderr.String(), "frontendStatusHistory:") {
		t.Fatal("status history is only printed for frontend readiness timeouts")
	}
}

func TestReportFrontendReadyTimeoutIncludesHistory(t *testing.T) {
	reporter, _, stderr := newReporter(contracts.ProofpackCheckRuntime)

	outcome := Classify(&phase.TimeoutError{Label: "frontendReady", Timeout: time.Minute})
	reporter.Report(outcome, Diagnostics{
		Logs:          []string{"vite starting"},
		StatusHistory: []string{"dial error: connection refused", "502 Bad Gateway"},
	})

	want := strings.Join([]string{
		"verify-runtime failed: phase:frontendReady timed out after 60000ms",
		"devLogsLast50:",
		"vite starting",
		"frontendStatusHistory:",
		"dial error: connection refused",
		"502 Bad Gateway",
		"",
	}, "\n")
	if stderr.String() != want {
		t.Fatalf("unexpected stderr:\n%s\nwant:\n%s", stderr.String(), want)
	}
}

func TestReportContractSuccess(t *testing.T) {
	reporter, stdout, _ := newReporter(contracts.ProofpackCheckBackendContract)
	if code := reporter.Report(Success(nil), Diagnostics{}); code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if stdout.String() != "OK verify-backend-contract\n" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestReportRuntimeSuccessJSON(t *testing.T) {
	reporter, stdout, _ := newReporter(contracts.ProofpackCheckRuntime)
	summary := contract.Summarize(contract.Capture{
		RoutesVisited:   []string{"http://127.0.0.1:5173/"},
		ConsoleMessages: []string{"warning: slow"},
	}, contract.MatchOrigin("http://127.0.0.1:3001", []string{"http://127.0.0.1:3001/api/feed"}))

	if code := reporter.Report(Success(summary), Diagnostics{}); code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}

	var decoded map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v (%s)", err, stdout.String())
	}
	for _, key := range []string{"routesVisited", "consoleWarningsOrErrorsFirst20", "pageErrors", "networkProof"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %s in %s", key, stdout.String())
		}
	}
	proof := decoded["networkProof"].(map[string]any)
	if proof["backendOrigin"] != "http://127.0.0.1:3001" {
		t.Fatalf("unexpected backend origin: %v", proof["backendOrigin"])
	}
	if pageErrors := decoded["pageErrors"].([]any); len(pageErrors) != 0 {
		t.Fatalf("unexpected page errors: %v", pageErrors)
	}
}

func TestRecovered(t *testing.T) {
	outcome := Recovered("nil map write")
	if outcome.Kind != contracts.ProofpackOutcomeProcessError || !strings.Contains(outcome.Message(), "nil map write") {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	boom := errors.New("boom")
	if !errors.Is(Recovered(boom).Err, boom) {
		t.Fatal("expected wrapped panic error")
	}
}

func newReporter(check contracts.ProofpackCheckName) (*Reporter, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &Reporter{
		Stdout:           stdout,
		Stderr:           stderr,
		Check:            check,
		BootstrapCommand: "npm run bootstrap",
	}, stdout, stderr
}

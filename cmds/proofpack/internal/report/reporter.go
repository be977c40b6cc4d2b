package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
)

const DevLogsTail = 50

// Diagnostics is the context printed with a failure.
type Diagnostics struct {
	Logs          []string
	StatusHistory []string
}

// Reporter renders outcomes onto the verifier's stdout/stderr contract.
type Reporter struct {
	Stdout           io.Writer
	Stderr           io.Writer
	Check            contracts.ProofpackCheckName
	BootstrapCommand string
}

// Report writes the outcome and returns the process exit code.
func (reporter *Reporter) Report(outcome Outcome, diagnostics Diagnostics) int {
	switch outcome.Kind {
	case contracts.ProofpackOutcomeMissingDevData:
		fmt.Fprintf(reporter.Stdout, "MISSING_DEV_DATA: run %s\n", reporter.BootstrapCommand)
	case contracts.ProofpackOutcomeSuccess:
		reporter.writeSuccess(outcome.Payload)
	default:
		reporter.writeFailure(outcome, diagnostics)
	}
	return outcome.ExitCode()
}

func (reporter *Reporter) writeSuccess(payload any) {
	if payload == nil {
		fmt.Fprintf(reporter.Stdout, "OK %s\n", reporter.Check)
		return
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(reporter.Stdout, "OK %s\n", reporter.Check)
		return
	}
	fmt.Fprintf(reporter.Stdout, "%s\n", encoded)
}

func (reporter *Reporter) writeFailure(outcome Outcome, diagnostics Diagnostics) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s failed: %s\n", reporter.Check, outcome.Message())

	builder.WriteString("devLogsLast50:\n")
	logs := diagnostics.Logs
	if len(logs) > DevLogsTail {
		logs = logs[len(logs)-DevLogsTail:]
	}
	for _, line := range logs {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	if outcome.Kind == contracts.ProofpackOutcomePhaseTimeout && outcome.Phase == contracts.ProofpackPhaseFrontendReady {
		builder.WriteString("frontendStatusHistory:\n")
		for _, status := range diagnostics.StatusHistory {
			builder.WriteString(status)
			builder.WriteByte('\n')
		}
	}

	_, _ = io.WriteString(reporter.Stderr, builder.String())
}

package report

import (
	"errors"
	"fmt"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contract"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/devdata"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/phase"
)

const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitMissingDevData = 2
)

// Outcome is the single terminal state of a run.
type Outcome struct {
	Kind contracts.ProofpackOutcomeKind
	// Phase is set for phase timeouts.
	Phase   contracts.ProofpackPhase
	Err     error
	Payload any
}

func MissingDevData(err error) Outcome {
	return Outcome{Kind: contracts.ProofpackOutcomeMissingDevData, Err: err}
}

func PhaseTimeout(label contracts.ProofpackPhase, err error) Outcome {
	return Outcome{Kind: contracts.ProofpackOutcomePhaseTimeout, Phase: label, Err: err}
}

func ContractViolation(err error) Outcome {
	return Outcome{Kind: contracts.ProofpackOutcomeContractViolation, Err: err}
}

func ProcessError(err error) Outcome {
	return Outcome{Kind: contracts.ProofpackOutcomeProcessError, Err: err}
}

func Success(payload any) Outcome {
	return Outcome{Kind: contracts.ProofpackOutcomeSuccess, Payload: payload}
}

func (outcome Outcome) ExitCode() int {
	switch outcome.Kind {
	case contracts.ProofpackOutcomeSuccess:
		return ExitSuccess
	case contracts.ProofpackOutcomeMissingDevData:
		return ExitMissingDevData
	default:
		return ExitFailure
	}
}

func (outcome Outcome) Message() string {
	if outcome.Err != nil {
		return outcome.Err.Error()
	}
	return string(outcome.Kind)
}

// Classify maps a run error onto its outcome. A nil error is a success
// without payload.
func Classify(err error) Outcome {
	if err == nil {
		return Success(nil)
	}

	var missing *devdata.MissingError
	if errors.As(err, &missing) {
		return MissingDevData(err)
	}

	if label, ok := phase.LabelOf(err); ok {
		return PhaseTimeout(contracts.ProofpackPhase(label), err)
	}

	var violation *contract.ViolationError
	if errors.As(err, &violation) {
		return ContractViolation(err)
	}

	// Fatal log lines and everything untyped are process errors.
	return ProcessError(err)
}

// Recovered turns a recovered panic value into a process error.
func Recovered(value any) Outcome {
	if err, ok := value.(error); ok {
		return ProcessError(fmt.Errorf("unexpected panic: %w", err))
	}
	return ProcessError(fmt.Errorf("unexpected panic: %v", value))
}

package contracts

type ProofpackCommand string

const (
	ProofpackCommandContract ProofpackCommand = "contract"
	ProofpackCommandRuntime  ProofpackCommand = "runtime"
)

// ProofpackCheckName is the operation name printed on success and in failure headers.
type ProofpackCheckName string

const (
	ProofpackCheckBackendContract ProofpackCheckName = "verify-backend-contract"
	ProofpackCheckRuntime         ProofpackCheckName = "verify-runtime"
)

type ProofpackOutcomeKind string

const (
	ProofpackOutcomeMissingDevData    ProofpackOutcomeKind = "missing-dev-data"
	ProofpackOutcomePhaseTimeout      ProofpackOutcomeKind = "phase-timeout"
	ProofpackOutcomeContractViolation ProofpackOutcomeKind = "contract-violation"
	ProofpackOutcomeProcessError      ProofpackOutcomeKind = "process-error"
	ProofpackOutcomeSuccess           ProofpackOutcomeKind = "success"
)

type ProofpackPhase string

const (
	ProofpackPhaseOverall       ProofpackPhase = "overall"
	ProofpackPhaseBackendHealth ProofpackPhase = "backendHealth"
	ProofpackPhaseDevData       ProofpackPhase = "devData"
	ProofpackPhaseFrontendReady ProofpackPhase = "frontendReady"
	ProofpackPhaseAuth          ProofpackPhase = "auth"
	ProofpackPhaseNetworkProof  ProofpackPhase = "networkProof"
)

type ProofpackProcessState string

const (
	ProofpackProcessStateRunning     ProofpackProcessState = "running"
	ProofpackProcessStateTerminating ProofpackProcessState = "terminating"
	ProofpackProcessStateTerminated  ProofpackProcessState = "terminated"
)

type ProofpackTransportMode string

const (
	ProofpackTransportModePipe ProofpackTransportMode = "pipe"
	ProofpackTransportModePTY  ProofpackTransportMode = "pty"
)

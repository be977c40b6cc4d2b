package verify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/browser"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/config"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contract"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/devdata"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/phase"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/portprobe"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/readiness"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/report"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/supervisor"
)

// Process is the part of a supervised dev stack the runner relies on.
type Process interface {
	PID() int
	Logs() *supervisor.LineBuffer
	Terminate()
}

type SpawnFunc func(ctx context.Context, request supervisor.SpawnRequest) (Process, error)

// SpawnSupervised starts the dev stack with the process supervisor.
func SpawnSupervised(ctx context.Context, request supervisor.SpawnRequest) (Process, error) {
	handle, err := supervisor.Spawn(ctx, request)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

type Result struct {
	Outcome     report.Outcome
	Diagnostics report.Diagnostics
}

// Runner executes one bounded verification run against a dev stack.
type Runner struct {
	Config *config.Config
	Logger *slog.Logger
	Client *http.Client
	Driver contract.PageDriver
	Spawn  SpawnFunc
	RunID  string
}

func New(cfg *config.Config, logger *slog.Logger) *Runner {
	runID := uuid.NewString()
	logger = logging.WithRun(logger, runID)

	return &Runner{
		Config: cfg,
		Logger: logger,
		Client: &http.Client{},
		Driver: &browser.RodDriver{Bin: cfg.BrowserBin, Logger: logger},
		Spawn:  SpawnSupervised,
		RunID:  runID,
	}
}

// RunContract proves backend health, dev data and the auth contract.
func (runner *Runner) RunContract(ctx context.Context) Result {
	return runner.run(ctx, contracts.ProofpackCommandContract)
}

// RunRuntime additionally proves frontend readiness and that frontend
// traffic reaches the backend origin.
func (runner *Runner) RunRuntime(ctx context.Context) Result {
	return runner.run(ctx, contracts.ProofpackCommandRuntime)
}

func (runner *Runner) run(ctx context.Context, mode contracts.ProofpackCommand) (result Result) {
	cfg := runner.Config
	startedAt := time.Now()
	frontendPoller := runner.newPoller()

	var process Process
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Outcome = report.Recovered(recovered)
		}
		pid := 0
		if process != nil {
			pid = process.PID()
			process.Terminate()
			result.Diagnostics.Logs = process.Logs().Last(report.DevLogsTail)
		}
		result.Diagnostics.StatusHistory = frontendPoller.History()

		logging.Event(
			runner.Logger,
			slog.LevelInfo,
			"outcome_classified",
			slog.String("mode", string(mode)),
			slog.String("outcome", string(result.Outcome.Kind)),
			slog.String("phase", string(result.Outcome.Phase)),
			slog.Int("exit_code", result.Outcome.ExitCode()),
			slog.Int("pid", pid),
			slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
		)
	}()

	logging.Event(
		runner.Logger,
		slog.LevelInfo,
		"run_started",
		slog.String("mode", string(mode)),
		slog.String("db_path", cfg.DBPath),
		slog.Int("backend_port", cfg.BackendPort),
		slog.Int("frontend_port", cfg.FrontendPort),
	)

	if err := devdata.Check(cfg.DBPath); err != nil {
		result.Outcome = report.Classify(err)
		return result
	}

	if err := portprobe.CheckFree(ctx, cfg.Host, cfg.Ports(), cfg.Tuning.PortProbe); err != nil {
		logging.Event(runner.Logger, slog.LevelWarn, "port_probe", slog.String("error", err.Error()))
		result.Outcome = report.Classify(err)
		return result
	}

	spawned, err := runner.Spawn(ctx, supervisor.SpawnRequest{
		Command:   cfg.DevCommand,
		Transport: cfg.Transport,
		Grace:     cfg.Tuning.TerminateGrace,
		Logger:    runner.Logger,
	})
	if err != nil {
		result.Outcome = report.ProcessError(err)
		return result
	}
	process = spawned

	payload, err := phase.Run(ctx, runner.phaseFor(contracts.ProofpackPhaseOverall), func(ctx context.Context) (any, error) {
		return runner.verify(ctx, mode, process, frontendPoller)
	})
	if err != nil {
		result.Outcome = report.Classify(err)
		return result
	}
	result.Outcome = report.Success(payload)
	return result
}

func (runner *Runner) verify(ctx context.Context, mode contracts.ProofpackCommand, process Process, frontendPoller *readiness.Poller) (any, error) {
	cfg := runner.Config
	runtime := mode == contracts.ProofpackCommandRuntime

	err := runner.step(ctx, contracts.ProofpackPhaseBackendHealth, func(ctx context.Context) error {
		return runner.newPoller().WaitFor(ctx, cfg.HealthURL(), readiness.Options{})
	})
	if err != nil {
		return nil, err
	}

	err = runner.step(ctx, contracts.ProofpackPhaseDevData, func(ctx context.Context) error {
		summary, err := devdata.Verify(ctx, cfg.DBPath)
		if err == nil && summary.PopulatedTable != "" {
			logging.Event(runner.Logger, slog.LevelDebug, "dev_data_found", slog.String("table", summary.PopulatedTable))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if runtime {
		err = runner.step(ctx, contracts.ProofpackPhaseFrontendReady, func(ctx context.Context) error {
			return frontendPoller.WaitFor(ctx, cfg.FrontendURL(config.DefaultRoute), readiness.Options{
				Logs:          process.Logs(),
				FatalPatterns: cfg.Tuning.FatalLogPatterns,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	err = runner.step(ctx, contracts.ProofpackPhaseAuth, func(ctx context.Context) error {
		_, err := contract.CheckAuth(ctx, runner.Client, cfg.AuthURL())
		return err
	})
	if err != nil {
		return nil, err
	}

	if !runtime {
		return nil, nil
	}

	var summary contract.RuntimeSummary
	err = runner.step(ctx, contracts.ProofpackPhaseNetworkProof, func(ctx context.Context) error {
		urls := make([]string, 0, len(cfg.Routes))
		for _, route := range cfg.Routes {
			urls = append(urls, cfg.FrontendURL(route))
		}
		proof, capture, err := contract.ProveNetwork(ctx, runner.Driver, contract.VisitRequest{
			URLs:              urls,
			NavigationTimeout: cfg.Tuning.Navigation,
			Settle:            cfg.Tuning.Settle,
		}, cfg.BackendOrigin())
		if err != nil {
			return err
		}
		summary = contract.Summarize(capture, proof)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (runner *Runner) step(ctx context.Context, label contracts.ProofpackPhase, op func(ctx context.Context) error) error {
	startedAt := time.Now()
	logging.Event(runner.Logger, slog.LevelInfo, "phase_started", slog.String("phase", string(label)))

	err := phase.Do(ctx, runner.phaseFor(label), op)

	attrs := []slog.Attr{
		slog.String("phase", string(label)),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logging.Event(runner.Logger, level, "phase_completed", attrs...)
	return err
}

func (runner *Runner) phaseFor(label contracts.ProofpackPhase) phase.Phase {
	tuning := runner.Config.Tuning
	timeouts := map[contracts.ProofpackPhase]time.Duration{
		contracts.ProofpackPhaseOverall:       tuning.Overall,
		contracts.ProofpackPhaseBackendHealth: tuning.BackendHealth,
		contracts.ProofpackPhaseDevData:       tuning.DevData,
		contracts.ProofpackPhaseFrontendReady: tuning.FrontendReady,
		contracts.ProofpackPhaseAuth:          tuning.Auth,
		contracts.ProofpackPhaseNetworkProof:  tuning.NetworkProof,
	}
	return phase.Phase{Label: string(label), Timeout: timeouts[label]}
}

func (runner *Runner) newPoller() *readiness.Poller {
	return &readiness.Poller{
		Client:         runner.Client,
		Interval:       runner.Config.Tuning.PollInterval,
		RequestTimeout: runner.Config.Tuning.RequestTimeout,
		Logger:         runner.Logger,
	}
}

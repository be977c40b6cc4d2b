package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/config"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/report"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/verify"
)

var errUsage = errors.New("a verifier command is required")

func Execute(args []string) int {
	return execute(context.Background(), args, os.Stdout, os.Stderr, os.Getenv)
}

func execute(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer, getenv func(string) string) int {
	exitCode := report.ExitFailure
	root := newRootCommand(stdout, stderr, getenv, &exitCode)
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		if errors.Is(err, errUsage) {
			_, _ = fmt.Fprint(stderr, root.UsageString())
		}
		// Exit code 2 is reserved for missing dev data.
		return report.ExitFailure
	}
	return exitCode
}

type verifierFlags struct {
	tuningFile string
	logLevel   string
	logFile    string
}

func newRootCommand(stdout io.Writer, stderr io.Writer, getenv func(string) string, exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "proofpack",
		Short:         "Bounded dev-stack verification supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errUsage
		},
	}

	verifiers := []struct {
		mode  contracts.ProofpackCommand
		check contracts.ProofpackCheckName
		short string
	}{
		{
			mode:  contracts.ProofpackCommandContract,
			check: contracts.ProofpackCheckBackendContract,
			short: "Prove backend health, dev data and the auth contract",
		},
		{
			mode:  contracts.ProofpackCommandRuntime,
			check: contracts.ProofpackCheckRuntime,
			short: "Additionally prove frontend readiness and backend-bound browser traffic",
		},
	}

	for _, verifier := range verifiers {
		verifier := verifier
		flags := &verifierFlags{}
		command := &cobra.Command{
			Use:     string(verifier.mode),
			Aliases: []string{string(verifier.check)},
			Short:   verifier.short,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				*exitCode = runVerifier(cmd.Context(), verifier.mode, verifier.check, flags, stdout, stderr, getenv)
				return nil
			},
		}
		command.Flags().StringVar(&flags.tuningFile, "config", "", "YAML tuning file (overrides "+config.EnvTuningFile+")")
		command.Flags().StringVar(&flags.logLevel, "log-level", "", "debug|info|warn|error (overrides "+config.EnvLogLevel+")")
		command.Flags().StringVar(&flags.logFile, "log-file", "", "JSON event log path (overrides "+config.EnvLogFile+")")
		root.AddCommand(command)
	}

	return root
}

func runVerifier(
	ctx context.Context,
	mode contracts.ProofpackCommand,
	check contracts.ProofpackCheckName,
	flags *verifierFlags,
	stdout io.Writer,
	stderr io.Writer,
	getenv func(string) string,
) int {
	getenv = overlay(getenv, map[string]string{
		config.EnvTuningFile: flags.tuningFile,
		config.EnvLogLevel:   flags.logLevel,
		config.EnvLogFile:    flags.logFile,
	})

	reporter := &report.Reporter{
		Stdout:           stdout,
		Stderr:           stderr,
		Check:            check,
		BootstrapCommand: getenv(config.EnvBootstrapCommand),
	}

	cfg, err := config.Load(mode, getenv)
	if err != nil {
		return reporter.Report(report.ProcessError(err), report.Diagnostics{})
	}
	reporter.BootstrapCommand = cfg.BootstrapCommand

	logger, closer, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return reporter.Report(report.ProcessError(fmt.Errorf("init logger: %w", err)), report.Diagnostics{})
	}
	defer closer.Close()

	runCtx, stop := withInterrupt(ctx)
	defer stop()

	runner := verify.New(cfg, logger)
	var result verify.Result
	if mode == contracts.ProofpackCommandRuntime {
		result = runner.RunRuntime(runCtx)
	} else {
		result = runner.RunContract(runCtx)
	}
	return reporter.Report(result.Outcome, result.Diagnostics)
}

func overlay(getenv func(string) string, overrides map[string]string) func(string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	return func(name string) string {
		if value := overrides[name]; value != "" {
			return value
		}
		return getenv(name)
	}
}

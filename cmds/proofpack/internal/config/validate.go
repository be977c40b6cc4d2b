package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
)

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch cfg.Mode {
	case contracts.ProofpackCommandContract, contracts.ProofpackCommandRuntime:
	default:
		return fmt.Errorf("unsupported verifier mode: %q", cfg.Mode)
	}

	if cfg.Mode == contracts.ProofpackCommandRuntime {
		if cfg.FrontendPort == 0 {
			return fmt.Errorf("%s is required", EnvFrontendPort)
		}
		if cfg.FrontendPort == cfg.BackendPort {
			return fmt.Errorf("%s and %s must differ (both %d)", EnvBackendPort, EnvFrontendPort, cfg.BackendPort)
		}
	}

	switch cfg.Transport {
	case contracts.ProofpackTransportModePipe, contracts.ProofpackTransportModePTY:
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvTransport, contracts.ProofpackTransportModePipe, contracts.ProofpackTransportModePTY, cfg.Transport)
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%s: %w", EnvLogLevel, err)
	}

	bounds := []struct {
		key   string
		value time.Duration
	}{
		{"overall", cfg.Tuning.Overall},
		{"backend_health", cfg.Tuning.BackendHealth},
		{"dev_data", cfg.Tuning.DevData},
		{"frontend_ready", cfg.Tuning.FrontendReady},
		{"auth", cfg.Tuning.Auth},
		{"network_proof", cfg.Tuning.NetworkProof},
		{"navigation", cfg.Tuning.Navigation},
		{"poll_interval", cfg.Tuning.PollInterval},
		{"request_timeout", cfg.Tuning.RequestTimeout},
		{"port_probe", cfg.Tuning.PortProbe},
		{"terminate_grace", cfg.Tuning.TerminateGrace},
	}
	for _, bound := range bounds {
		if bound.value <= 0 {
			return fmt.Errorf("tuning %s must be positive, got %s", bound.key, bound.value)
		}
	}
	if cfg.Tuning.Settle < 0 {
		return fmt.Errorf("tuning settle must not be negative, got %s", cfg.Tuning.Settle)
	}

	return nil
}

func parsePort(name string, raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer port, got %q", name, raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be within 1..65535, got %d", name, port)
	}
	return port, nil
}

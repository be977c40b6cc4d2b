package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
)

// MissingEnvError lists required parameters that were absent or blank.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("%s is required", e.Names[0])
	}
	return fmt.Sprintf("%s are required", strings.Join(e.Names, ", "))
}

type tuningFile struct {
	Overall          string   `yaml:"overall"`
	BackendHealth    string   `yaml:"backend_health"`
	DevData          string   `yaml:"dev_data"`
	FrontendReady    string   `yaml:"frontend_ready"`
	Auth             string   `yaml:"auth"`
	NetworkProof     string   `yaml:"network_proof"`
	Navigation       string   `yaml:"navigation"`
	Settle           string   `yaml:"settle"`
	PollInterval     string   `yaml:"poll_interval"`
	RequestTimeout   string   `yaml:"request_timeout"`
	PortProbe        string   `yaml:"port_probe"`
	TerminateGrace   string   `yaml:"terminate_grace"`
	FatalLogPatterns []string `yaml:"fatal_log_patterns"`
}

// Load reads the run configuration for mode from getenv. A nil getenv reads
// the process environment.
func Load(mode contracts.ProofpackCommand, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	required := []string{EnvDBPath, EnvBackendPort}
	if mode == contracts.ProofpackCommandRuntime {
		required = append(required, EnvFrontendPort)
	}
	required = append(required, EnvHealthEndpoint, EnvBootstrapCommand, EnvDevCommand)

	var missing []string
	for _, name := range required {
		if strings.TrimSpace(getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Names: missing}
	}

	cfg := &Config{
		Mode:             mode,
		DBPath:           strings.TrimSpace(getenv(EnvDBPath)),
		HealthEndpoint:   normalizePath(getenv(EnvHealthEndpoint)),
		BootstrapCommand: strings.TrimSpace(getenv(EnvBootstrapCommand)),
		DevCommand:       strings.TrimSpace(getenv(EnvDevCommand)),
		AuthEndpoint:     normalizePath(defaultValue(getenv(EnvAuthEndpoint), DefaultAuthEndpoint)),
		Host:             strings.TrimSpace(defaultValue(getenv(EnvHost), DefaultHost)),
		Routes:           parseRoutes(getenv(EnvRoutes)),
		Transport:        contracts.ProofpackTransportMode(strings.ToLower(strings.TrimSpace(defaultValue(getenv(EnvTransport), string(contracts.ProofpackTransportModePipe))))),
		BrowserBin:       strings.TrimSpace(getenv(EnvBrowserBin)),
		LogLevel:         strings.TrimSpace(getenv(EnvLogLevel)),
		LogFile:          strings.TrimSpace(getenv(EnvLogFile)),
		Tuning:           DefaultTuning(mode),
	}

	backendPort, err := parsePort(EnvBackendPort, getenv(EnvBackendPort))
	if err != nil {
		return nil, err
	}
	cfg.BackendPort = backendPort

	if raw := getenv(EnvFrontendPort); strings.TrimSpace(raw) != "" {
		frontendPort, err := parsePort(EnvFrontendPort, raw)
		if err != nil {
			return nil, err
		}
		cfg.FrontendPort = frontendPort
	}

	if path := strings.TrimSpace(getenv(EnvTuningFile)); path != "" {
		if err := applyTuningFile(path, &cfg.Tuning); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyTuningFile(path string, tuning *Tuning) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	var raw tuningFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode tuning file %s: %w", path, err)
	}

	fields := []struct {
		key    string
		value  string
		target *time.Duration
	}{
		{"overall", raw.Overall, &tuning.Overall},
		{"backend_health", raw.BackendHealth, &tuning.BackendHealth},
		{"dev_data", raw.DevData, &tuning.DevData},
		{"frontend_ready", raw.FrontendReady, &tuning.FrontendReady},
		{"auth", raw.Auth, &tuning.Auth},
		{"network_proof", raw.NetworkProof, &tuning.NetworkProof},
		{"navigation", raw.Navigation, &tuning.Navigation},
		{"settle", raw.Settle, &tuning.Settle},
		{"poll_interval", raw.PollInterval, &tuning.PollInterval},
		{"request_timeout", raw.RequestTimeout, &tuning.RequestTimeout},
		{"port_probe", raw.PortProbe, &tuning.PortProbe},
		{"terminate_grace", raw.TerminateGrace, &tuning.TerminateGrace},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(field.value))
		if err != nil {
			return fmt.Errorf("tuning %s parse failed: %w", field.key, err)
		}
		*field.target = parsed
	}

	if raw.FatalLogPatterns != nil {
		tuning.FatalLogPatterns = append([]string(nil), raw.FatalLogPatterns...)
	}
	return nil
}

func parseRoutes(raw string) []string {
	routes := make([]string, 0)
	for _, route := range strings.Split(raw, ",") {
		route = strings.TrimSpace(route)
		if route == "" {
			continue
		}
		routes = append(routes, normalizePath(route))
	}
	if len(routes) == 0 {
		routes = append(routes, DefaultRoute)
	}
	return routes
}

func defaultValue(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

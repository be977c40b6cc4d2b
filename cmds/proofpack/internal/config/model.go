package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
)

const (
	EnvDBPath           = "C4_DB_PATH"
	EnvBackendPort      = "C4_BACKEND_PORT"
	EnvFrontendPort     = "C4_FRONTEND_PORT"
	EnvHealthEndpoint   = "C4_HEALTH_ENDPOINT"
	EnvBootstrapCommand = "C4_BOOTSTRAP_COMMAND"
	EnvDevCommand       = "C4_DEV_COMMAND"
	EnvAuthEndpoint     = "C4_AUTH_ENDPOINT"
	EnvHost             = "C4_HOST"
	EnvRoutes           = "C4_ROUTES"
	EnvTransport        = "C4_DEV_TRANSPORT"
	EnvBrowserBin       = "C4_BROWSER_BIN"
	EnvTuningFile       = "C4_PROOFPACK_CONFIG"
	EnvLogLevel         = "C4_LOG_LEVEL"
	EnvLogFile          = "C4_LOG_FILE"

	DefaultAuthEndpoint = "/auth/me"
	DefaultHost         = "127.0.0.1"
	DefaultRoute        = "/"
)

// Config is the validated input of one verification run. It is built once by
// Load and never mutated afterwards.
type Config struct {
	Mode             contracts.ProofpackCommand
	DBPath           string
	BackendPort      int
	FrontendPort     int
	HealthEndpoint   string
	BootstrapCommand string
	DevCommand       string
	AuthEndpoint     string
	Host             string
	Routes           []string
	Transport        contracts.ProofpackTransportMode
	BrowserBin       string
	LogLevel         string
	LogFile          string
	Tuning           Tuning
}

// Tuning holds every bound the run enforces.
type Tuning struct {
	Overall          time.Duration
	BackendHealth    time.Duration
	DevData          time.Duration
	FrontendReady    time.Duration
	Auth             time.Duration
	NetworkProof     time.Duration
	Navigation       time.Duration
	Settle           time.Duration
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	PortProbe        time.Duration
	TerminateGrace   time.Duration
	FatalLogPatterns []string
}

func DefaultTuning(mode contracts.ProofpackCommand) Tuning {
	overall := 60 * time.Second
	if mode == contracts.ProofpackCommandRuntime {
		overall = 180 * time.Second
	}
	return Tuning{
		Overall:        overall,
		BackendHealth:  20 * time.Second,
		DevData:        5 * time.Second,
		FrontendReady:  60 * time.Second,
		Auth:           10 * time.Second,
		NetworkProof:   45 * time.Second,
		Navigation:     30 * time.Second,
		Settle:         1500 * time.Millisecond,
		PollInterval:   200 * time.Millisecond,
		RequestTimeout: 1500 * time.Millisecond,
		PortProbe:      800 * time.Millisecond,
		TerminateGrace: 300 * time.Millisecond,
		FatalLogPatterns: []string{
			"Failed to resolve import",
			"Cannot find module",
			"Module not found",
			"ERR_MODULE_NOT_FOUND",
		},
	}
}

func (cfg *Config) BackendOrigin() string {
	return origin(cfg.Host, cfg.BackendPort)
}

func (cfg *Config) FrontendOrigin() string {
	return origin(cfg.Host, cfg.FrontendPort)
}

func (cfg *Config) HealthURL() string {
	return cfg.BackendOrigin() + cfg.HealthEndpoint
}

func (cfg *Config) AuthURL() string {
	return cfg.BackendOrigin() + cfg.AuthEndpoint
}

func (cfg *Config) FrontendURL(route string) string {
	return cfg.FrontendOrigin() + normalizePath(route)
}

// Ports lists the TCP ports the run needs free before spawning.
func (cfg *Config) Ports() []int {
	ports := []int{cfg.BackendPort}
	if cfg.Mode == contracts.ProofpackCommandRuntime && cfg.FrontendPort > 0 {
		ports = append(ports, cfg.FrontendPort)
	}
	return ports
}

func origin(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

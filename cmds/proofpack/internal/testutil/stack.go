package testutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/supervisor"
)

// StackOptions shapes the responses of a fake dev stack.
type StackOptions struct {
	HealthEndpoint string
	AuthEndpoint   string
	HealthStatus   int
	AuthStatus     int
	AuthBody       string
	FrontendStatus int
	LogLines       []string
}

// Stack is an in-process stand-in for a spawned dev stack.
type Stack struct {
	options      StackOptions
	backendPort  int
	frontendPort int
	logs         *supervisor.LineBuffer

	mu          sync.Mutex
	servers     []*http.Server
	terminates  atomic.Int32
	healthCalls atomic.Int32
}

func NewStack(backendPort int, frontendPort int, options StackOptions) *Stack {
	if options.HealthEndpoint == "" {
		options.HealthEndpoint = "/api/health"
	}
	if options.AuthEndpoint == "" {
		options.AuthEndpoint = "/auth/me"
	}
	if options.HealthStatus == 0 {
		options.HealthStatus = http.StatusOK
	}
	if options.AuthStatus == 0 {
		options.AuthStatus = http.StatusOK
	}
	if options.AuthBody == "" {
		options.AuthBody = `{"id":"u_1"}`
	}
	if options.FrontendStatus == 0 {
		options.FrontendStatus = http.StatusOK
	}
	return &Stack{
		options:      options,
		backendPort:  backendPort,
		frontendPort: frontendPort,
		logs:         supervisor.NewLineBuffer(supervisor.DefaultLogCapacity),
	}
}

// Start binds the backend (and frontend, when its port is set) listeners.
func (stack *Stack) Start() error {
	backend := http.NewServeMux()
	backend.HandleFunc(stack.options.HealthEndpoint, func(w http.ResponseWriter, r *http.Request) {
		stack.healthCalls.Add(1)
		w.WriteHeader(stack.options.HealthStatus)
	})
	backend.HandleFunc(stack.options.AuthEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stack.options.AuthStatus)
		_, _ = w.Write([]byte(stack.options.AuthBody))
	})
	if err := stack.serve(stack.backendPort, backend); err != nil {
		return err
	}

	if stack.frontendPort > 0 {
		frontend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(stack.options.FrontendStatus)
			_, _ = w.Write([]byte("<html><body>app</body></html>"))
		})
		if err := stack.serve(stack.frontendPort, frontend); err != nil {
			stack.Terminate()
			return err
		}
	}

	for _, line := range stack.options.LogLines {
		stack.logs.Append(line)
	}
	return nil
}

func (stack *Stack) serve(port int, handler http.Handler) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen on %d: %w", port, err)
	}
	server := &http.Server{Handler: handler}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stack.logs.Append("serve error: " + err.Error())
		}
	}()

	stack.mu.Lock()
	stack.servers = append(stack.servers, server)
	stack.mu.Unlock()
	return nil
}

// PID reports the test process, which hosts the fake stack's servers.
func (stack *Stack) PID() int {
	return os.Getpid()
}

func (stack *Stack) Logs() *supervisor.LineBuffer {
	return stack.logs
}

func (stack *Stack) Terminate() {
	stack.terminates.Add(1)

	stack.mu.Lock()
	servers := stack.servers
	stack.servers = nil
	stack.mu.Unlock()

	for _, server := range servers {
		_ = server.Close()
	}
}

func (stack *Stack) TerminateCalls() int {
	return int(stack.terminates.Load())
}

func (stack *Stack) HealthCalls() int {
	return int(stack.healthCalls.Load())
}

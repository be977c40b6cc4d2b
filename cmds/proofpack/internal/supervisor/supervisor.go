package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/contracts"
	"github.com/c4lab/proofpack/cmds/proofpack/internal/logging"
)

const (
	DefaultGrace = 300 * time.Millisecond

	defaultScannerBufferSize = 64 * 1024
	maxScannerBufferSize     = 1024 * 1024
)

type SpawnRequest struct {
	Command     string
	Dir         string
	Env         []string
	Transport   contracts.ProofpackTransportMode
	Grace       time.Duration
	LogCapacity int
	Logger      *slog.Logger
}

// processTree signals the spawned leader and everything it forked.
type processTree interface {
	signalGroup(force bool) error
	signalLeader(force bool) error
	release()
}

// Handle owns one spawned process-group leader.
type Handle struct {
	pid     int
	grace   time.Duration
	logger  *slog.Logger
	logs    *LineBuffer
	tree    processTree
	output  io.Closer

	done        chan struct{}
	readersDone chan struct{}

	mu       sync.Mutex
	state    contracts.ProofpackProcessState
	exitCode int
	waitErr  error

	terminateOnce sync.Once
}

// Spawn starts request.Command through the platform shell as the leader of
// a new process group. Merged stdout and stderr are line-split into the
// handle's LineBuffer.
func Spawn(ctx context.Context, request SpawnRequest) (*Handle, error) {
	if strings.TrimSpace(request.Command) == "" {
		return nil, fmt.Errorf("command is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	grace := request.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	transport := request.Transport
	if transport == "" {
		transport = contracts.ProofpackTransportModePipe
	}

	command := shellCommand(request.Command)
	command.Dir = request.Dir
	command.Env = append(os.Environ(), request.Env...)

	var (
		output io.ReadCloser
		err    error
	)
	switch transport {
	case contracts.ProofpackTransportModePipe:
		output, err = startPipe(command)
	case contracts.ProofpackTransportModePTY:
		output, err = startPTY(command)
	default:
		return nil, fmt.Errorf("unsupported transport mode: %s", transport)
	}
	if err != nil {
		return nil, err
	}

	tree, err := attachTree(command)
	if err != nil {
		_ = command.Process.Kill()
		_, _ = command.Process.Wait()
		_ = output.Close()
		return nil, fmt.Errorf("attach process tree: %w", err)
	}

	handle := &Handle{
		pid:         command.Process.Pid,
		grace:       grace,
		logger:      request.Logger,
		logs:        NewLineBuffer(request.LogCapacity),
		tree:        tree,
		output:      output,
		done:        make(chan struct{}),
		readersDone: make(chan struct{}),
		state:       contracts.ProofpackProcessStateRunning,
		exitCode:    -1,
	}

	go handle.readLines(output)
	go handle.wait(command)

	logging.Event(
		handle.logger,
		slog.LevelInfo,
		"process_spawned",
		slog.Int("pid", handle.pid),
		slog.String("transport", string(transport)),
		slog.String("command", request.Command),
	)
	return handle, nil
}

func startPipe(command *exec.Cmd) (io.ReadCloser, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	command.Stdout = writer
	command.Stderr = writer
	configureProcessGroup(command)

	if err := command.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("start command: %w", err)
	}
	// The child holds its own copy; EOF arrives once every descendant closes it.
	_ = writer.Close()
	return reader, nil
}

func (handle *Handle) readLines(reader io.Reader) {
	defer close(handle.readersDone)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, defaultScannerBufferSize), maxScannerBufferSize)
	for scanner.Scan() {
		handle.logs.Append(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil && !isBenignOutputErr(err) {
		logging.Event(
			handle.logger,
			slog.LevelWarn,
			"process_output_error",
			slog.Int("pid", handle.pid),
			slog.String("error", err.Error()),
		)
	}
}

func (handle *Handle) wait(command *exec.Cmd) {
	waitErr := command.Wait()

	handle.mu.Lock()
	handle.waitErr = waitErr
	handle.exitCode = resolveExitCode(waitErr)
	exitCode := handle.exitCode
	handle.mu.Unlock()
	close(handle.done)

	logging.Event(
		handle.logger,
		slog.LevelDebug,
		"process_exited",
		slog.Int("pid", handle.pid),
		slog.Int("exit_code", exitCode),
	)
}

// Terminate stops the whole process tree: a graceful signal to the group
// (falling back to the leader), a grace window, then a forceful kill of the
// group and the leader. It never fails and only the first call does work.
func (handle *Handle) Terminate() {
	if handle == nil {
		return
	}
	handle.terminateOnce.Do(handle.terminate)
}

func (handle *Handle) terminate() {
	handle.setState(contracts.ProofpackProcessStateTerminating)
	startedAt := time.Now()

	if err := handle.tree.signalGroup(false); err != nil {
		_ = handle.tree.signalLeader(false)
	}

	graceTimer := time.NewTimer(handle.grace)
	select {
	case <-handle.done:
	case <-graceTimer.C:
	}
	graceTimer.Stop()

	// Descendants may outlive the leader, so the group is always killed.
	_ = handle.tree.signalGroup(true)
	_ = handle.tree.signalLeader(true)

	waitBounded(handle.done, handle.grace)
	if !waitBounded(handle.readersDone, handle.grace) {
		_ = handle.output.Close()
		waitBounded(handle.readersDone, handle.grace)
	}
	_ = handle.output.Close()
	handle.tree.release()

	handle.setState(contracts.ProofpackProcessStateTerminated)
	logging.Event(
		handle.logger,
		slog.LevelInfo,
		"process_terminate",
		slog.Int("pid", handle.pid),
		slog.Bool("leader_exited", handle.Exited()),
		slog.Int64("duration_ms", time.Since(startedAt).Milliseconds()),
	)
}

func (handle *Handle) PID() int {
	return handle.pid
}

func (handle *Handle) Logs() *LineBuffer {
	return handle.logs
}

// Done is closed once the leader process has exited.
func (handle *Handle) Done() <-chan struct{} {
	return handle.done
}

func (handle *Handle) Exited() bool {
	select {
	case <-handle.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the leader's exit code once it has exited.
func (handle *Handle) ExitCode() (int, bool) {
	if !handle.Exited() {
		return 0, false
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.exitCode, true
}

func (handle *Handle) State() contracts.ProofpackProcessState {
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.state
}

func (handle *Handle) setState(state contracts.ProofpackProcessState) {
	handle.mu.Lock()
	handle.state = state
	handle.mu.Unlock()
}

func waitBounded(ch <-chan struct{}, bound time.Duration) bool {
	timer := time.NewTimer(bound)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func resolveExitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func isBenignOutputErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EIO) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "file already closed") || strings.Contains(message, "input/output error")
}

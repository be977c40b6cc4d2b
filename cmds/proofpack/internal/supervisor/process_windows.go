//go:build windows

package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("cmd", "/C", script)
}

func configureProcessGroup(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func startPTY(command *exec.Cmd) (io.ReadCloser, error) {
	return nil, fmt.Errorf("pty transport is not supported on windows")
}

// jobTree tracks the leader through a job object, the Windows counterpart of
// a process group.
type jobTree struct {
	job     windows.Handle
	pid     int
	process *os.Process
}

func attachTree(command *exec.Cmd) (processTree, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return nil, fmt.Errorf("configure job object: %w", err)
	}

	pid := command.Process.Pid
	processHandle, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		_ = windows.CloseHandle(job)
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(processHandle)

	if err := windows.AssignProcessToJobObject(job, processHandle); err != nil {
		_ = windows.CloseHandle(job)
		return nil, fmt.Errorf("assign process %d to job: %w", pid, err)
	}

	return &jobTree{job: job, pid: pid, process: command.Process}, nil
}

func (tree *jobTree) signalGroup(force bool) error {
	if force {
		return windows.TerminateJobObject(tree.job, 1)
	}
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(tree.pid))
}

func (tree *jobTree) signalLeader(force bool) error {
	if force {
		return tree.process.Kill()
	}
	return tree.process.Signal(os.Interrupt)
}

func (tree *jobTree) release() {
	if tree.job != 0 {
		_ = windows.CloseHandle(tree.job)
		tree.job = 0
	}
}

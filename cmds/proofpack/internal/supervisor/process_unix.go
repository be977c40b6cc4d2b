//go:build !windows

package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("sh", "-c", script)
}

func configureProcessGroup(command *exec.Cmd) {
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// startPTY runs command on a new pseudo terminal. pty.Start puts the child in
// a new session, which also makes it a process-group leader.
func startPTY(command *exec.Cmd) (io.ReadCloser, error) {
	ptmx, err := pty.Start(command)
	if err != nil {
		return nil, fmt.Errorf("start pty process: %w", err)
	}
	return ptmx, nil
}

type groupTree struct {
	pgid    int
	process *os.Process
}

func attachTree(command *exec.Cmd) (processTree, error) {
	pid := command.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	return &groupTree{pgid: pgid, process: command.Process}, nil
}

func (tree *groupTree) signalGroup(force bool) error {
	if tree.pgid <= 1 || tree.pgid == unix.Getpgrp() {
		return fmt.Errorf("refusing to signal process group %d", tree.pgid)
	}
	return unix.Kill(-tree.pgid, signalFor(force))
}

func (tree *groupTree) signalLeader(force bool) error {
	if force {
		return tree.process.Kill()
	}
	return tree.process.Signal(syscall.SIGTERM)
}

func (tree *groupTree) release() {}

func signalFor(force bool) unix.Signal {
	if force {
		return unix.SIGKILL
	}
	return unix.SIGTERM
}

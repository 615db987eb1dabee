//go:build !windows

package updater

import (
	"errors"
	"os"
	"syscall"
)

// isProcessAlive reports whether pid refers to a running process. Signal 0
// probes existence without delivering anything; EPERM still means the
// process exists.
func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// killProcess forcefully terminates pid.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

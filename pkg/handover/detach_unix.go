//go:build !windows

package handover

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr puts the updater in its own session so it does not
// die with this process's group.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

//go:build windows

package handover

import (
	"os/exec"
	"syscall"
)

// DETACHED_PROCESS is not exposed by the syscall package.
const detachedProcess = 0x00000008

// setDetachedProcAttr detaches the updater from this console so it keeps
// running after the parent exits.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}

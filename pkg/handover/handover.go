// Package handover passes a staged release to the external updater process
// and ends the current process so its locks on the install dir are released.
package handover

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// UpdaterName is the base name of the updater executable shipped with every
// release.
const UpdaterName = "molt-updater"

// ExitRestartPending is the exit status of a process that handed an update
// off to the updater. To a supervisor it means "restart me", not failure.
const ExitRestartPending = 3

// HandoffError means the updater could not be launched. Recoverable: the
// current process keeps running on its old version.
type HandoffError struct {
	Err error
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("update handoff failed: %v", e.Err)
}

func (e *HandoffError) Unwrap() error { return e.Err }

// UpdaterBinaryName returns name with the platform executable suffix.
func UpdaterBinaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Installer hands a staged release to the updater process. It satisfies the
// installer callback contract of the update flow: Apply does not return on
// success, because the process exits.
type Installer struct {
	updaterName string

	// Swappable for testing.
	start func(path string, args ...string) error
	exit  func(code int)
	pid   func() int
}

// New creates an Installer that launches the named updater binary from the
// destination dir.
func New(updaterName string) *Installer {
	if updaterName == "" {
		updaterName = UpdaterName
	}
	return &Installer{
		updaterName: updaterName,
		start:       startDetached,
		exit:        os.Exit,
		pid:         os.Getpid,
	}
}

// Apply verifies the updater shipped with the installed release, spawns it
// detached with this process's PID and the staged/destination paths, then
// exits with ExitRestartPending. The updater invoked is always the currently
// installed copy, never the staged one: the staged tree is not trusted until
// it has been applied.
func (i *Installer) Apply(sourceDir, destinationDir string) error {
	updaterPath := filepath.Join(destinationDir, UpdaterBinaryName(i.updaterName))

	info, err := os.Stat(updaterPath)
	if err != nil {
		return &HandoffError{Err: fmt.Errorf("updater not found at %s: %w", updaterPath, err)}
	}
	if info.IsDir() {
		return &HandoffError{Err: fmt.Errorf("updater path %s is a directory", updaterPath)}
	}

	pid := i.pid()
	log.WithFields(log.Fields{
		"updater": updaterPath,
		"pid":     pid,
		"staged":  sourceDir,
	}).Info("handing off to updater")

	if err := i.start(updaterPath, strconv.Itoa(pid), destinationDir, sourceDir); err != nil {
		return &HandoffError{Err: fmt.Errorf("failed to launch updater: %w", err)}
	}

	// The updater waits for this PID to disappear before touching anything.
	i.exit(ExitRestartPending)
	return nil
}

// startDetached launches the updater so it outlives this process.
func startDetached(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	setDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

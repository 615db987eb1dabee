// Package updater replaces an installed application tree with a staged
// release. It runs as its own short-lived process, spawned by the
// application being updated: it waits for that process to exit, swaps the
// staged files into place and removes the staging directory.
//
// Everything the updater knows arrives as command-line arguments; the only
// other channel between the two processes is the filesystem.
package updater

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Exit codes of the updater executable.
const (
	ExitOK          = 0
	ExitUsage       = 2
	ExitNoStage     = 3
	ExitApplyFailed = 4
)

// Phase names a step of the updater state machine.
type Phase int

const (
	PhaseWait Phase = iota
	PhaseForceKill
	PhaseValidate
	PhaseApply
	PhaseCleanup
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWait:
		return "wait"
	case PhaseForceKill:
		return "force-kill"
	case PhaseValidate:
		return "validate"
	case PhaseApply:
		return "apply"
	case PhaseCleanup:
		return "cleanup"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Invocation is the cross-process contract passed on the command line.
type Invocation struct {
	TargetPID       int
	DestinationDir  string
	StagedSourceDir string
}

// ParseInvocation builds an Invocation from the positional arguments
// <pid> <destinationDir> <extractDir>.
func ParseInvocation(args []string) (Invocation, error) {
	if len(args) != 3 {
		return Invocation{}, fmt.Errorf("expected <pid> <destinationDir> <extractDir>, got %d arguments", len(args))
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return Invocation{}, fmt.Errorf("invalid pid %q", args[0])
	}

	return Invocation{
		TargetPID:       pid,
		DestinationDir:  args[1],
		StagedSourceDir: args[2],
	}, nil
}

// Options tune the wait loop and result reporting.
type Options struct {
	// SettleDelay is a pause before the first liveness probe, giving the
	// parent time to finish exiting after the spawn.
	SettleDelay time.Duration
	// WaitTimeout bounds how long the updater waits for the parent to exit
	// before force-killing it.
	WaitTimeout time.Duration
	// PollInterval is the time between liveness probes.
	PollInterval time.Duration
	// ResultPath, when set, receives a Result file whatever the outcome.
	ResultPath string
}

// DefaultOptions returns the stock timing parameters.
func DefaultOptions() Options {
	return Options{
		SettleDelay:  2 * time.Second,
		WaitTimeout:  10 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// ValidationError means the staged source dir is missing: nothing to install.
type ValidationError struct {
	Path string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("staged source dir not found: %s", e.Path)
}

// ApplyError is a fatal mid-apply failure. The destination may be left in a
// mixed state: entries already replaced stay replaced, the rest keep their
// old content. The updater does not roll back.
type ApplyError struct {
	Entry string
	Err   error
}

func (e *ApplyError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("apply failed: %v", e.Err)
	}
	return fmt.Sprintf("apply failed at %s: %v", e.Entry, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Run drives the updater state machine: wait for the target process to
// exit (force-killing it after the timeout), validate the staged dir,
// apply it over the destination and clean up. Only the wait is
// cancellable; once Apply starts it runs to completion or fatal error.
func Run(ctx context.Context, inv Invocation, opts Options) (err error) {
	started := time.Now()

	if opts.ResultPath != "" {
		defer func() {
			res := Result{
				Success:     err == nil,
				TargetPID:   inv.TargetPID,
				Destination: inv.DestinationDir,
				StartedAt:   started,
				FinishedAt:  time.Now(),
			}
			if err != nil {
				res.Error = err.Error()
			}
			if werr := WriteResult(opts.ResultPath, res); werr != nil {
				log.WithError(werr).Warn("failed to write result file")
			}
		}()
	}

	log.WithFields(log.Fields{
		"pid":    inv.TargetPID,
		"dest":   inv.DestinationDir,
		"staged": inv.StagedSourceDir,
	}).Info("updater starting")

	if opts.SettleDelay > 0 {
		sleepContext(ctx, opts.SettleDelay)
	}

	log.WithField("phase", PhaseWait).Debug("waiting for target process to exit")
	if !waitForExit(ctx, inv.TargetPID, opts.WaitTimeout, opts.PollInterval) {
		log.WithFields(log.Fields{
			"phase": PhaseForceKill,
			"pid":   inv.TargetPID,
		}).Warn("target process still alive after wait timeout, killing it")
		if kerr := killProcess(inv.TargetPID); kerr != nil {
			log.WithError(kerr).Warn("force kill failed, continuing anyway")
		}
	}

	log.WithField("phase", PhaseValidate).Debug("validating staged dir")
	info, serr := os.Stat(inv.StagedSourceDir)
	if serr != nil || !info.IsDir() {
		return &ValidationError{Path: inv.StagedSourceDir}
	}

	log.WithField("phase", PhaseApply).Info("applying staged release")
	if err := Apply(inv.StagedSourceDir, inv.DestinationDir); err != nil {
		return err
	}

	log.WithField("phase", PhaseCleanup).Debug("removing staged dir")
	Cleanup(inv.StagedSourceDir)

	log.WithField("phase", PhaseDone).Info("update applied")
	return nil
}

// waitForExit polls pid until it is gone or the timeout elapses. Returns
// true once the process is observed gone.
func waitForExit(ctx context.Context, pid int, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if !isProcessAlive(pid) {
			return true
		}
		if !sleepContext(ctx, interval) {
			break
		}
	}

	return !isProcessAlive(pid)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// molt-updater is the detached helper that applies a staged release over
// an installed application. It is spawned by the process being updated
// and is not meant to be run by hand.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/logging"
	"github.com/molt-dev/molt/pkg/updater"
)

// Set by the linker at release build time.
var version = "0.0.0-dev"

// usageError marks a failure in the invocation itself rather than the
// update, so it maps to the usage exit code.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ranRun := false

	var (
		waitTimeout  time.Duration
		settleDelay  time.Duration
		pollInterval time.Duration
		logFile      string
		logLevel     string
		resultFile   string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "molt-updater <pid> <destinationDir> <extractDir>",
		Short: "Apply a staged release over an installed application",
		Long: `molt-updater waits for the named process to exit, replaces the
destination directory's entries with the staged ones and removes the
staging directory. A result file records the outcome for the next run
of the updated application.`,
		Version:       version,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ranRun = true

			inv, err := updater.ParseInvocation(args)
			if err != nil {
				return &usageError{err: err}
			}

			// The state dir next to the staging dir keeps the log across
			// the install, where stderr of a detached process goes nowhere.
			logPath := logFile
			if logPath == "" {
				logPath = filepath.Join(filepath.Dir(inv.StagedSourceDir), "updater.log")
			}
			if err := logging.Init(logLevel, logPath); err != nil {
				return &usageError{err: err}
			}

			if dryRun {
				return printPlan(cmd, inv)
			}

			opts := updater.DefaultOptions()
			opts.WaitTimeout = waitTimeout
			opts.SettleDelay = settleDelay
			opts.PollInterval = pollInterval
			opts.ResultPath = resultFile
			if opts.ResultPath == "" {
				opts.ResultPath = updater.DefaultResultPath(inv.StagedSourceDir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return updater.Run(ctx, inv, opts)
		},
	}

	defaults := updater.DefaultOptions()
	cmd.Flags().DurationVar(&waitTimeout, "timeout", defaults.WaitTimeout, "How long to wait for the target process before force-killing it")
	cmd.Flags().DurationVar(&settleDelay, "settle", defaults.SettleDelay, "Pause before the first liveness probe")
	cmd.Flags().DurationVar(&pollInterval, "poll", defaults.PollInterval, "Interval between liveness probes")
	cmd.Flags().StringVar(&logFile, "log-file", "", `Log file (default: updater.log next to the staging dir, "console" for stderr)`)
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&resultFile, "result-file", "", "Result file (default: updater-result.json next to the staging dir)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be replaced without touching anything")

	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return updater.ExitOK
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var usageErr *usageError
	var validationErr *updater.ValidationError
	switch {
	case !ranRun, errors.As(err, &usageErr):
		return updater.ExitUsage
	case errors.As(err, &validationErr):
		return updater.ExitNoStage
	default:
		return updater.ExitApplyFailed
	}
}

// printPlan lists the actions an apply would take.
func printPlan(cmd *cobra.Command, inv updater.Invocation) error {
	if info, err := os.Stat(inv.StagedSourceDir); err != nil || !info.IsDir() {
		return &updater.ValidationError{Path: inv.StagedSourceDir}
	}

	plan, err := updater.BuildPlan(inv.StagedSourceDir, inv.DestinationDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "would apply %s over %s:\n", inv.StagedSourceDir, inv.DestinationDir)
	for _, action := range plan {
		fmt.Fprintf(out, "  %s\n", action)
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/interactive"
	"github.com/molt-dev/molt/pkg/update"
)

func newUpdateCmd() *cobra.Command {
	var stageOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and install the latest release",
		Long: `Update checks the release channel and, when a newer release exists,
downloads, verifies and installs it. Installation is handed off to the
updater process: on success this command does not return, the process
exits so its binary can be replaced, and the next invocation runs the
new version.

A confirmation prompt is shown before installing when running in a
terminal. Use --yes to skip it; without a terminal the update proceeds
unprompted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context(), stageOnly)
		},
	}

	cmd.Flags().BoolVar(&stageOnly, "stage", false, "Download and stage the release without installing")

	return cmd
}

func runUpdate(ctx context.Context, stageOnly bool) error {
	agent, err := update.New(ctx, agentConfig())
	if err != nil {
		return err
	}

	reportPreviousRun(agent)

	rel := agent.Check(ctx)
	if rel == nil {
		if !quiet {
			fmt.Printf("%s %s is up to date.\n", cfg.App(), buildVersion)
		}
		return nil
	}

	if stageOnly {
		staged, err := agent.Stage(ctx, rel)
		if err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("Release %s staged at %s\n", rel.Version, staged.SourceDir)
		}
		return nil
	}

	if !assumeYes && interactive.IsTerminal() {
		prompter := interactive.NewPrompter()
		if !prompter.ConfirmInstall(buildVersion, rel) {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	// On success Install does not return: the process exits with
	// handover.ExitRestartPending and the updater takes over.
	return agent.Install(ctx, rel)
}

// reportPreviousRun surfaces the outcome of the last handed-off update, if
// one is pending. Reading consumes the result file.
func reportPreviousRun(agent *update.Agent) {
	res := agent.LastUpdateResult()
	if res == nil || quiet {
		return
	}
	if res.Success {
		fmt.Printf("Previous update applied %s\n", res.FinishedAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(os.Stderr, "Previous update failed: %s\n", res.Error)
	}
}

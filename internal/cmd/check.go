package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/output"
	"github.com/molt-dev/molt/pkg/update"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is available",
		Long: `Check asks the release channel for its latest release and reports whether
it is newer than the running version. Nothing is downloaded or installed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}
}

// checkReport is the check command's output document.
type checkReport struct {
	CurrentVersion   string `json:"current_version" yaml:"current_version"`
	UpdateAvailable  bool   `json:"update_available" yaml:"update_available"`
	AvailableVersion string `json:"available_version,omitempty" yaml:"available_version,omitempty"`
	Archive          string `json:"archive,omitempty" yaml:"archive,omitempty"`
	Size             int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

func (r checkReport) String() string {
	if !r.UpdateAvailable {
		return fmt.Sprintf("%s is up to date.", r.CurrentVersion)
	}
	return fmt.Sprintf("Update available: %s -> %s\nRun 'molt update' to install.", r.CurrentVersion, r.AvailableVersion)
}

func runCheck(ctx context.Context) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	agent, err := update.New(ctx, agentConfig())
	if err != nil {
		return err
	}

	rel, err := agent.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	report := checkReport{CurrentVersion: buildVersion}
	if rel != nil {
		report.UpdateAvailable = true
		report.AvailableVersion = rel.Version
		report.Archive = rel.Filename
		report.Size = rel.Size
	}

	return output.NewWriter(os.Stdout, format).Write(report)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/output"
	"github.com/molt-dev/molt/pkg/update"
)

func newCleanCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove cached metadata, old downloads and staging leftovers",
		Long: `Clean prunes the per-user update state: cached mutable trust metadata,
downloaded archives beyond the keep count, and leftover extraction
staging. Pinned trust roots are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep") {
				keep = cfg.Keep(update.DefaultKeepArchives)
			}
			return runClean(keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", update.DefaultKeepArchives, "Number of downloaded archives to retain")

	return cmd
}

func runClean(keep int) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	report, cleanErr := update.CleanState(agentConfig(), keep)
	if report != nil {
		if format == output.FormatText {
			printCleanReportText(report)
		} else if err := output.NewWriter(os.Stdout, format).Write(report); err != nil {
			return err
		}
	}
	return cleanErr
}

// printCleanReportText outputs the clean report in human-readable form.
func printCleanReportText(report *update.CleanReport) {
	if quiet {
		return
	}
	if len(report.MetadataRemoved) > 0 {
		fmt.Printf("Metadata removed: %d\n", len(report.MetadataRemoved))
	}
	if len(report.ArchivesRemoved) > 0 {
		fmt.Printf("Archives removed: %d (kept %d)\n", len(report.ArchivesRemoved), report.ArchivesKept)
	}
	if report.StagingCleared {
		fmt.Println("Staging cleared.")
	}
	if len(report.MetadataRemoved) == 0 && len(report.ArchivesRemoved) == 0 && !report.StagingCleared {
		fmt.Println("Nothing to clean.")
	}
}

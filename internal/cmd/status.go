package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/output"
	"github.com/molt-dev/molt/pkg/update"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the on-disk update state",
		Long: `Status reports the resolved directories, trust bootstrap state, staged
files and the outcome of the last update, without contacting the release
channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	status, err := update.InspectState(agentConfig())
	if err != nil {
		return err
	}

	return output.NewWriter(os.Stdout, format).Write(status)
}

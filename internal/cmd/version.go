package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/output"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the molt version, commit and build date.

Use 'molt check' to see whether a newer release is available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion()
		},
	}
}

type versionReport struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func (r versionReport) String() string {
	return fmt.Sprintf("molt version %s\n  commit: %s\n  built:  %s\n  go:     %s (%s)",
		r.Version, r.Commit, r.Date, r.Go, r.Platform)
}

func runVersion() error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	report := versionReport{
		Version:  buildVersion,
		Commit:   buildCommit,
		Date:     buildDate,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	return output.NewWriter(os.Stdout, format).Write(report)
}

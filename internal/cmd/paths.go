package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/molt-dev/molt/internal/config"
	"github.com/molt-dev/molt/internal/output"
	"github.com/molt-dev/molt/pkg/appdir"
)

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show the resolved directories",
		Long:  `Paths prints where molt reads its config and keeps its per-user state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaths()
		},
	}
}

// pathsReport lists every location the update flow touches.
type pathsReport struct {
	ConfigFile   string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	InstallDir   string `json:"install_dir" yaml:"install_dir"`
	UserStateDir string `json:"user_state_dir" yaml:"user_state_dir"`
	MetadataDir  string `json:"metadata_dir" yaml:"metadata_dir"`
	DownloadDir  string `json:"download_dir" yaml:"download_dir"`
	ExtractDir   string `json:"extract_dir" yaml:"extract_dir"`
}

func (r pathsReport) String() string {
	configFile := r.ConfigFile
	if configFile == "" {
		configFile = "(none)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "config file:  %s\n", configFile)
	fmt.Fprintf(&b, "install dir:  %s\n", r.InstallDir)
	fmt.Fprintf(&b, "state dir:    %s\n", r.UserStateDir)
	fmt.Fprintf(&b, "  metadata:   %s\n", r.MetadataDir)
	fmt.Fprintf(&b, "  downloads:  %s\n", r.DownloadDir)
	fmt.Fprintf(&b, "  staging:    %s", r.ExtractDir)
	return b.String()
}

func runPaths() error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	loc, err := appdir.Resolve(cfg.App())
	if err != nil {
		return err
	}

	report := pathsReport{
		InstallDir:   loc.InstallDir,
		UserStateDir: loc.UserStateDir,
		MetadataDir:  loc.MetadataDir(),
		DownloadDir:  loc.DownloadDir(),
		ExtractDir:   loc.ExtractDir(),
	}
	if path, err := config.Find(configPath); err == nil {
		report.ConfigFile = path
	}

	return output.NewWriter(os.Stdout, format).Write(report)
}

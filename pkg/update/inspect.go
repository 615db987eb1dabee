package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/molt-dev/molt/pkg/handover"
	"github.com/molt-dev/molt/pkg/trust"
	"github.com/molt-dev/molt/pkg/updater"
)

// Status is a point-in-time snapshot of the on-disk update state for one
// application.
type Status struct {
	AppName        string          `json:"app_name" yaml:"app_name"`
	CurrentVersion string          `json:"current_version" yaml:"current_version"`
	InstallDir     string          `json:"install_dir" yaml:"install_dir"`
	UserStateDir   string          `json:"user_state_dir" yaml:"user_state_dir"`
	TrustState     string          `json:"trust_state" yaml:"trust_state"`
	CachedMetadata []string        `json:"cached_metadata,omitempty" yaml:"cached_metadata,omitempty"`
	UpdaterPresent bool            `json:"updater_present" yaml:"updater_present"`
	StagedEntries  int             `json:"staged_entries" yaml:"staged_entries"`
	DownloadCount  int             `json:"download_count" yaml:"download_count"`
	LastResult     *updater.Result `json:"last_result,omitempty" yaml:"last_result,omitempty"`
}

func (s *Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.AppName, s.CurrentVersion)
	fmt.Fprintf(&b, "  install dir: %s\n", s.InstallDir)
	fmt.Fprintf(&b, "  state dir:   %s\n", s.UserStateDir)
	fmt.Fprintf(&b, "  trust:       %s\n", s.TrustState)
	if len(s.CachedMetadata) > 0 {
		fmt.Fprintf(&b, "  cached:      %s\n", strings.Join(s.CachedMetadata, ", "))
	}
	fmt.Fprintf(&b, "  updater:     %s\n", presence(s.UpdaterPresent))
	fmt.Fprintf(&b, "  staged:      %d entries\n", s.StagedEntries)
	fmt.Fprintf(&b, "  downloads:   %d archives\n", s.DownloadCount)
	if s.LastResult != nil {
		outcome := "succeeded"
		if !s.LastResult.Success {
			outcome = fmt.Sprintf("failed: %s", s.LastResult.Error)
		}
		fmt.Fprintf(&b, "  last update: %s at %s\n", outcome, s.LastResult.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func presence(present bool) string {
	if present {
		return "installed"
	}
	return "missing"
}

// InspectState reports the on-disk update state without bootstrapping
// trust or contacting any origin. The config needs no client factory.
func InspectState(cfg Config) (*Status, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("app name is required")
	}

	loc, err := resolveLocation(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app directories: %w", err)
	}

	status := &Status{
		AppName:        cfg.AppName,
		CurrentVersion: cfg.CurrentVersion,
		InstallDir:     loc.InstallDir,
		UserStateDir:   loc.UserStateDir,
		TrustState:     trust.New(loc.MetadataDir(), cfg.MetadataURL).State().String(),
	}

	for _, name := range trust.MutableMetadataFiles {
		if fileExists(filepath.Join(loc.MetadataDir(), name)) {
			status.CachedMetadata = append(status.CachedMetadata, name)
		}
	}

	updaterPath := filepath.Join(loc.InstallDir, handover.UpdaterBinaryName(cfg.updaterName()))
	status.UpdaterPresent = fileExists(updaterPath)

	status.StagedEntries = countEntries(loc.ExtractDir())
	status.DownloadCount = countEntries(loc.DownloadDir())

	if res, err := updater.ReadResult(updater.DefaultResultPath(loc.ExtractDir())); err == nil {
		status.LastResult = res
	}

	return status, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

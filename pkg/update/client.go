package update

import (
	"context"

	goversion "github.com/hashicorp/go-version"
)

// Release describes a verified newer release as reported by the
// verification client. It is transient: checked, maybe staged, never
// persisted.
type Release struct {
	Version  string `json:"version" yaml:"version"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

// SemVer returns the parsed release version.
func (r *Release) SemVer() (*goversion.Version, error) {
	return goversion.NewVersion(r.Version)
}

// StagedRelease points at a directory of extracted files ready to install.
// Once handed to the updater process it belongs to the updater; the
// original process must not touch it again.
type StagedRelease struct {
	SourceDir string `json:"source_dir" yaml:"source_dir"`
}

// Settings is everything a verification client needs to operate for one
// application.
type Settings struct {
	AppName        string
	InstallDir     string
	CurrentVersion string
	MetadataDir    string
	MetadataURL    string
	DownloadDir    string
	DownloadURL    string
	ExtractDir     string
}

// StageOptions tune the download and extraction step.
type StageOptions struct {
	// TargetBaseURL points at the versioned subdirectory holding this
	// release's artifacts.
	TargetBaseURL string
	// SkipConfirmation suppresses any prompt inside the client; the
	// embedding application owns user interaction.
	SkipConfirmation bool
	// PurgeOldArchives lets the client delete superseded downloads.
	PurgeOldArchives bool
}

// InstallRunner is the installer callback handed to the client once a
// release is staged. The production implementation exits the process and
// never returns on success.
type InstallRunner interface {
	Apply(sourceDir, destinationDir string) error
}

// InstallRunnerFunc adapts a function to InstallRunner.
type InstallRunnerFunc func(sourceDir, destinationDir string) error

func (f InstallRunnerFunc) Apply(sourceDir, destinationDir string) error {
	return f(sourceDir, destinationDir)
}

// VerificationClient is the external trust-verification collaborator. It
// owns metadata signature checking, freshness, target hashing, archive
// download and extraction; none of that happens in this module.
type VerificationClient interface {
	// CheckForUpdates returns a release newer than the current version, or
	// nil when up to date.
	CheckForUpdates(ctx context.Context) (*Release, error)
	// DownloadAndApply downloads and extracts rel, then invokes install
	// with the staged source dir and the install dir.
	DownloadAndApply(ctx context.Context, rel *Release, opts StageOptions, install InstallRunner) error
}

// ClientFactory builds a verification client bound to the given settings.
type ClientFactory func(Settings) (VerificationClient, error)

// Package update orchestrates the self-update flow for an installed
// application: resolve its directories, bootstrap trust metadata, ask the
// verification client for a newer release, stage it, and hand installation
// off to the detached updater process.
package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/molt-dev/molt/pkg/appdir"
	"github.com/molt-dev/molt/pkg/handover"
	"github.com/molt-dev/molt/pkg/trust"
	"github.com/molt-dev/molt/pkg/updater"
)

// Default origins for the reference release channel. Embedding
// applications override these through Config.
const (
	DefaultMetadataURL = "https://raw.githubusercontent.com/molt-dev/molt-releases/main/repository/metadata/"
	DefaultDownloadURL = "https://github.com/molt-dev/molt-releases/releases/download"
)

// Config describes one application to keep updated.
type Config struct {
	// AppName names the application; per-user state lives under it.
	AppName string
	// CurrentVersion is the running version, for example "1.2.0".
	CurrentVersion string
	// MetadataURL is the trust metadata origin. Defaults to
	// DefaultMetadataURL.
	MetadataURL string
	// DownloadURL is the release artifact origin. Defaults to
	// DefaultDownloadURL.
	DownloadURL string
	// UpdaterName overrides the updater binary base name installed next to
	// the application. Defaults to handover.UpdaterName.
	UpdaterName string
	// BundledRoot optionally carries a trusted root file shipped with the
	// application, usually via embed.FS.
	BundledRoot fs.FS
	// Factory builds the external verification client. Required by New.
	Factory ClientFactory
	// Installer overrides the install callback. Defaults to the handover
	// installer, which spawns the updater and exits the process.
	Installer InstallRunner
	// PurgeOldArchives lets the client delete superseded downloads after a
	// successful stage.
	PurgeOldArchives bool
	// Location overrides directory resolution. When nil the location is
	// resolved from the running executable.
	Location *appdir.InstallLocation
}

func (c *Config) updaterName() string {
	if c.UpdaterName != "" {
		return c.UpdaterName
	}
	return handover.UpdaterName
}

// Agent drives the update flow for one application.
type Agent struct {
	cfg       Config
	loc       appdir.InstallLocation
	boot      *trust.Bootstrapper
	client    VerificationClient
	installer InstallRunner
}

// New resolves the application's directories, bootstraps trust metadata
// and builds the verification client. A *trust.BootstrapError is returned
// when the local store cannot be initialized; the application remains
// usable on its current version.
func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("verification client factory is required")
	}
	if cfg.CurrentVersion == "" {
		return nil, fmt.Errorf("current version is required")
	}
	if _, err := goversion.NewVersion(cfg.CurrentVersion); err != nil {
		return nil, fmt.Errorf("invalid current version %q: %w", cfg.CurrentVersion, err)
	}
	if cfg.MetadataURL == "" {
		cfg.MetadataURL = DefaultMetadataURL
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = DefaultDownloadURL
	}

	loc, err := resolveLocation(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app directories: %w", err)
	}
	if err := loc.EnsureStateDirs(); err != nil {
		return nil, err
	}

	boot := trust.New(loc.MetadataDir(), cfg.MetadataURL)
	if cfg.BundledRoot != nil {
		boot = boot.WithBundledRoot(cfg.BundledRoot)
	}
	if err := boot.Bootstrap(ctx); err != nil {
		return nil, err
	}

	client, err := cfg.Factory(Settings{
		AppName:        cfg.AppName,
		InstallDir:     loc.InstallDir,
		CurrentVersion: cfg.CurrentVersion,
		MetadataDir:    loc.MetadataDir(),
		MetadataURL:    cfg.MetadataURL,
		DownloadDir:    loc.DownloadDir(),
		DownloadURL:    cfg.DownloadURL,
		ExtractDir:     loc.ExtractDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create verification client: %w", err)
	}

	installer := cfg.Installer
	if installer == nil {
		installer = handover.New(cfg.updaterName())
	}

	return &Agent{
		cfg:       cfg,
		loc:       loc,
		boot:      boot,
		client:    client,
		installer: installer,
	}, nil
}

// Location returns the resolved install location.
func (a *Agent) Location() appdir.InstallLocation {
	return a.loc
}

// CheckForUpdates asks the verification client for a release newer than
// the current version. Failures come back as a *CheckError. Most callers
// want Check, which folds failures into "no update available".
func (a *Agent) CheckForUpdates(ctx context.Context) (*Release, error) {
	// Stale mutable metadata must never mask a newer release.
	if err := a.boot.InvalidateMutableCache(); err != nil {
		return nil, &CheckError{Err: err}
	}

	rel, err := a.client.CheckForUpdates(ctx)
	if err != nil {
		return nil, &CheckError{Err: err}
	}
	if rel == nil {
		log.WithField("version", a.cfg.CurrentVersion).Debug("no update available")
		return nil, nil
	}
	if !a.isNewer(rel) {
		return nil, nil
	}

	log.WithFields(log.Fields{
		"current":   a.cfg.CurrentVersion,
		"available": rel.Version,
	}).Info("update available")
	return rel, nil
}

// Check reports whether a newer release is available. Any failure is
// logged and treated as no update: the caller always gets a descriptor or
// a clean nothing-to-do.
func (a *Agent) Check(ctx context.Context) *Release {
	rel, err := a.CheckForUpdates(ctx)
	if err != nil {
		log.WithError(err).Warn("skipping update")
		return nil
	}
	return rel
}

func (a *Agent) isNewer(rel *Release) bool {
	available, err := rel.SemVer()
	if err != nil {
		log.WithError(err).WithField("version", rel.Version).Warn("ignoring release with unparsable version")
		return false
	}
	current, err := goversion.NewVersion(a.cfg.CurrentVersion)
	if err != nil {
		// Validated in New; an unparsable current version cannot block
		// updating away from itself.
		return true
	}
	if !available.GreaterThan(current) {
		log.WithFields(log.Fields{
			"current": a.cfg.CurrentVersion,
			"offered": rel.Version,
		}).Debug("ignoring release that is not newer")
		return false
	}
	return true
}

// VersionedTargetURL returns the download origin for one release. Each
// release's artifacts live under their own versioned subdirectory of the
// download origin.
func (a *Agent) VersionedTargetURL(rel *Release) string {
	return versionedTargetURL(a.cfg.DownloadURL, rel.Version)
}

func versionedTargetURL(base, version string) string {
	segment := version
	if v, err := goversion.NewVersion(version); err == nil {
		segment = v.Core().String()
	}
	return strings.TrimSuffix(base, "/") + "/v" + segment + "/"
}

// Stage downloads and extracts rel without installing it, returning the
// staged source directory.
func (a *Agent) Stage(ctx context.Context, rel *Release) (*StagedRelease, error) {
	var staged *StagedRelease
	collect := InstallRunnerFunc(func(sourceDir, destinationDir string) error {
		staged = &StagedRelease{SourceDir: sourceDir}
		return nil
	})
	if err := a.download(ctx, rel, collect); err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, &StageError{Err: fmt.Errorf("client finished without staging anything")}
	}
	log.WithField("source", staged.SourceDir).Info("release staged")
	return staged, nil
}

// Install downloads rel and hands the staged files to the updater process.
// On success the current process exits with handover.ExitRestartPending
// and this call never returns.
func (a *Agent) Install(ctx context.Context, rel *Release) error {
	return a.download(ctx, rel, a.installer)
}

func (a *Agent) download(ctx context.Context, rel *Release, install InstallRunner) error {
	if rel == nil {
		return &StageError{Err: fmt.Errorf("no release to stage")}
	}
	opts := StageOptions{
		TargetBaseURL:    a.VersionedTargetURL(rel),
		SkipConfirmation: true,
		PurgeOldArchives: a.cfg.PurgeOldArchives,
	}
	if err := a.client.DownloadAndApply(ctx, rel, opts, install); err != nil {
		var handoffErr *handover.HandoffError
		if errors.As(err, &handoffErr) {
			return err
		}
		return &StageError{Err: err}
	}
	return nil
}

// LastUpdateResult returns the result the updater process recorded during
// the previous install, or nil when there is none. The result file is
// consumed so each outcome is reported once.
func (a *Agent) LastUpdateResult() *updater.Result {
	path := updater.DefaultResultPath(a.loc.ExtractDir())
	res, err := updater.ReadResult(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).Debug("failed to read updater result")
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		log.WithError(err).Debug("failed to remove updater result")
	}
	return res
}

func resolveLocation(cfg *Config) (appdir.InstallLocation, error) {
	if cfg.Location != nil {
		return *cfg.Location, nil
	}
	return appdir.Resolve(cfg.AppName)
}

// Package trust establishes the local trust anchor for update metadata and
// keeps the mutable metadata cache from going stale.
//
// The trust root is the pair root.json / 1.root.json inside the metadata
// directory. Both must exist non-empty before any update check. The preferred
// source is a copy bundled with the application; fetching the root from the
// metadata origin is a trust-on-first-use fallback: the first fetch is
// unverified, which is a deliberate, documented gap rather than a bug.
package trust

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Trust root files inside the metadata dir.
const (
	RootFile          = "root.json"
	VersionedRootFile = "1.root.json"
)

// MutableMetadataFiles are cache files that must never outlive a check.
// They are deleted on every bootstrap so the verification client re-derives
// freshness from the network instead of trusting a local copy.
var MutableMetadataFiles = []string{"timestamp.json", "snapshot.json", "targets.json"}

// State describes how much of the trust root is present locally.
type State int

const (
	// StateUninitialized means root.json is absent.
	StateUninitialized State = iota
	// StatePartiallyInitialized means root.json exists but 1.root.json is missing.
	StatePartiallyInitialized
	// StateInitialized means both root files exist non-empty.
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePartiallyInitialized:
		return "partial"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// BootstrapError marks a failed trust bootstrap. It is recoverable: the
// update flow aborts for this run but the host application keeps going.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("trust bootstrap failed: %v", e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// Swappable for testing.
var osExecutable = os.Executable

// Bootstrapper installs and maintains the trust root for one metadata dir.
type Bootstrapper struct {
	metadataDir string
	metadataURL string
	bundled     fs.FS
	fetcher     *Fetcher
}

// New creates a bootstrapper for the given metadata directory and origin URL.
func New(metadataDir, metadataURL string) *Bootstrapper {
	return &Bootstrapper{
		metadataDir: metadataDir,
		metadataURL: metadataURL,
		fetcher:     NewFetcher(),
	}
}

// WithBundledRoot supplies a filesystem (typically an embed.FS) whose
// root.json is used as the bundled trust root.
func (b *Bootstrapper) WithBundledRoot(fsys fs.FS) *Bootstrapper {
	b.bundled = fsys
	return b
}

// WithFetcher replaces the metadata fetcher.
func (b *Bootstrapper) WithFetcher(f *Fetcher) *Bootstrapper {
	b.fetcher = f
	return b
}

// State reports the current trust root state.
func (b *Bootstrapper) State() State {
	root := fileExistsNonEmpty(filepath.Join(b.metadataDir, RootFile))
	versioned := fileExistsNonEmpty(filepath.Join(b.metadataDir, VersionedRootFile))

	switch {
	case root && versioned:
		return StateInitialized
	case root:
		return StatePartiallyInitialized
	default:
		return StateUninitialized
	}
}

// Bootstrap ensures the trust root exists locally, copying a bundled root
// when available and falling back to a trust-on-first-use fetch from the
// metadata origin. The mutable metadata cache is invalidated on every call,
// whatever the state. Once both root files exist the call is a no-op.
func (b *Bootstrapper) Bootstrap(ctx context.Context) error {
	if err := os.MkdirAll(b.metadataDir, 0o755); err != nil {
		return &BootstrapError{Err: fmt.Errorf("failed to create metadata dir: %w", err)}
	}

	if err := b.InvalidateMutableCache(); err != nil {
		return &BootstrapError{Err: err}
	}

	switch b.State() {
	case StateInitialized:
		log.WithField("dir", b.metadataDir).Debug("trust root already initialized")
		return nil

	case StatePartiallyInitialized:
		log.Info("versioned trust root missing, fetching it")
		if err := b.fetchRootFiles(ctx, VersionedRootFile); err != nil {
			return &BootstrapError{Err: err}
		}
		return nil
	}

	copied, err := b.copyBundledRoot()
	if err != nil {
		return &BootstrapError{Err: err}
	}
	if copied {
		if b.State() == StateInitialized {
			return nil
		}
		if err := b.fetchRootFiles(ctx, VersionedRootFile); err != nil {
			return &BootstrapError{Err: err}
		}
		return nil
	}

	log.Warn("no bundled trust root found, fetching on first use")
	if err := b.fetchRootFiles(ctx, VersionedRootFile, RootFile); err != nil {
		return &BootstrapError{Err: err}
	}
	return nil
}

// InvalidateMutableCache deletes timestamp, snapshot and targets metadata.
func (b *Bootstrapper) InvalidateMutableCache() error {
	var result *multierror.Error

	for _, name := range MutableMetadataFiles {
		path := filepath.Join(b.metadataDir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", path, err))
		}
	}

	return result.ErrorOrNil()
}

// copyBundledRoot installs a bundled root.json as both root files. Returns
// false when no bundled copy exists.
func (b *Bootstrapper) copyBundledRoot() (bool, error) {
	data, source := b.readBundledRoot()
	if data == nil {
		return false, nil
	}

	for _, name := range []string{RootFile, VersionedRootFile} {
		dst := filepath.Join(b.metadataDir, name)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return false, fmt.Errorf("failed to write %s: %w", dst, err)
		}
	}

	log.WithField("source", source).Info("installed bundled trust root")
	return true, nil
}

// readBundledRoot looks for a bundled root.json, first in the injected
// filesystem, then next to the executable. A nil return means none found.
func (b *Bootstrapper) readBundledRoot() ([]byte, string) {
	if b.bundled != nil {
		data, err := fs.ReadFile(b.bundled, RootFile)
		if err == nil && len(data) > 0 {
			return data, "embedded"
		}
	}

	exe, err := osExecutable()
	if err != nil {
		return nil, ""
	}

	path := filepath.Join(filepath.Dir(exe), RootFile)
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, ""
	}
	return data, path
}

func (b *Bootstrapper) fetchRootFiles(ctx context.Context, names ...string) error {
	for _, name := range names {
		data, err := b.fetcher.Fetch(ctx, joinURL(b.metadataURL, name))
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", name, err)
		}

		dst := filepath.Join(b.metadataDir, name)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dst, err)
		}
	}
	return nil
}

func fileExistsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

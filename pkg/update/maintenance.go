package update

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/molt-dev/molt/pkg/trust"
)

// DefaultKeepArchives is how many downloaded archives CleanState retains.
const DefaultKeepArchives = 3

// CleanReport summarizes what CleanState removed.
type CleanReport struct {
	MetadataRemoved []string `json:"metadata_removed,omitempty" yaml:"metadata_removed,omitempty"`
	ArchivesRemoved []string `json:"archives_removed,omitempty" yaml:"archives_removed,omitempty"`
	ArchivesKept    int      `json:"archives_kept" yaml:"archives_kept"`
	StagingCleared  bool     `json:"staging_cleared" yaml:"staging_cleared"`
}

// CleanState prunes per-user update state: cached mutable metadata, old
// downloaded archives beyond keep, and leftover extraction staging. Trust
// roots are never touched. Partial failures are aggregated; the report
// covers whatever succeeded.
func CleanState(cfg Config, keep int) (*CleanReport, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	loc, err := resolveLocation(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app directories: %w", err)
	}

	report := &CleanReport{}
	var result *multierror.Error

	for _, name := range trust.MutableMetadataFiles {
		path := filepath.Join(loc.MetadataDir(), name)
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", name, err))
			}
			continue
		}
		report.MetadataRemoved = append(report.MetadataRemoved, name)
	}

	removed, kept, err := pruneDownloads(loc.DownloadDir(), keep)
	if err != nil {
		result = multierror.Append(result, err)
	}
	report.ArchivesRemoved = removed
	report.ArchivesKept = kept

	cleared, err := clearStaging(loc.ExtractDir())
	if err != nil {
		result = multierror.Append(result, err)
	}
	report.StagingCleared = cleared

	log.WithFields(log.Fields{
		"metadata": len(report.MetadataRemoved),
		"archives": len(report.ArchivesRemoved),
		"staging":  report.StagingCleared,
	}).Debug("cleaned update state")
	return report, result.ErrorOrNil()
}

// pruneDownloads keeps the newest keep archives and deletes the rest.
func pruneDownloads(dir string, keep int) ([]string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read downloads: %w", err)
	}

	type archive struct {
		name string
		mod  time.Time
	}
	var archives []archive
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archive{name: entry.Name(), mod: info.ModTime()})
	}

	// Newest first.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].mod.After(archives[j].mod)
	})

	if len(archives) <= keep {
		return nil, len(archives), nil
	}

	var removed []string
	for _, a := range archives[keep:] {
		if err := os.Remove(filepath.Join(dir, a.name)); err != nil {
			return removed, keep, fmt.Errorf("failed to remove %s: %w", a.name, err)
		}
		removed = append(removed, a.name)
	}
	return removed, keep, nil
}

func clearStaging(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read staging: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to clear staging: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return true, fmt.Errorf("failed to recreate staging: %w", err)
	}
	return true, nil
}

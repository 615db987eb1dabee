package channel

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/molt-dev/molt/pkg/update"
)

// maxChecksumsSize bounds the checksum manifest download.
const maxChecksumsSize = 1 << 20

// DownloadAndApply downloads the release asset, verifies it against the
// channel's checksum manifest, stages it, and hands the staged tree to
// the install runner. The updater companion binary is staged too when
// the release publishes one.
func (c *Client) DownloadAndApply(ctx context.Context, rel *update.Release, opts update.StageOptions, install update.InstallRunner) error {
	if rel == nil || rel.Filename == "" {
		return fmt.Errorf("release has no downloadable asset")
	}
	base := opts.TargetBaseURL
	if base == "" {
		return fmt.Errorf("missing target base URL")
	}

	sums, err := c.fetchChecksums(ctx, base+checksumsAsset)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", checksumsAsset, err)
	}

	archivePath := filepath.Join(c.settings.DownloadDir, rel.Filename)
	if err := c.downloadVerified(ctx, base+rel.Filename, archivePath, sums); err != nil {
		return err
	}

	if err := c.clearStaging(); err != nil {
		return err
	}
	platform := Detect()
	if err := stageBinary(archivePath, filepath.Join(c.settings.ExtractDir, platform.executableName(c.settings.AppName))); err != nil {
		return fmt.Errorf("failed to stage release: %w", err)
	}
	updaterAsset, err := c.stageUpdater(ctx, base, sums)
	if err != nil {
		return err
	}

	if opts.PurgeOldArchives {
		c.purgeOldArchives(rel.Filename, updaterAsset)
	}

	log.WithFields(log.Fields{
		"version": rel.Version,
		"staged":  c.settings.ExtractDir,
	}).Info("release staged")

	return install.Apply(c.settings.ExtractDir, c.settings.InstallDir)
}

// downloadVerified downloads url to dst and checks the result against the
// manifest entry for dst's base name. A failed check removes the file.
func (c *Client) downloadVerified(ctx context.Context, url, dst string, sums map[string]string) error {
	name := filepath.Base(dst)
	want, ok := sums[name]
	if !ok {
		return fmt.Errorf("%s has no entry for %s", checksumsAsset, name)
	}

	got, err := c.downloadFile(ctx, url, dst)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	if !strings.EqualFold(got, want) {
		os.Remove(dst)
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", name, got, want)
	}

	log.WithField("asset", name).Debug("checksum verified")
	return nil
}

// downloadFile streams url into dst and returns the hex SHA-256 of the
// downloaded bytes. The file appears atomically via a temp rename.
func (c *Client) downloadFile(ctx context.Context, url, dst string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".partial-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// fetchChecksums downloads and parses the checksum manifest. Lines are
// "<hex>  <name>" in sha256sum format; a leading '*' on the name marks
// binary mode and is stripped.
func (c *Client) fetchChecksums(ctx context.Context, url string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	sums := make(map[string]string)
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxChecksumsSize))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimPrefix(fields[1], "*")
		sums[name] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}

	return sums, nil
}

// stageUpdater downloads and stages the release's updater companion when
// the manifest lists one, returning the archive name it kept. Releases
// without a companion keep the installed updater.
func (c *Client) stageUpdater(ctx context.Context, base string, sums map[string]string) (string, error) {
	platform := Detect()
	assetName := platform.AssetName(c.settings.AppName + "-updater")
	if _, ok := sums[assetName]; !ok {
		log.WithField("asset", assetName).Debug("release has no updater companion")
		return "", nil
	}

	archivePath := filepath.Join(c.settings.DownloadDir, assetName)
	if err := c.downloadVerified(ctx, base+assetName, archivePath, sums); err != nil {
		return "", err
	}
	staged := filepath.Join(c.settings.ExtractDir, platform.executableName(c.settings.AppName+"-updater"))
	if err := stageBinary(archivePath, staged); err != nil {
		return "", fmt.Errorf("failed to stage updater: %w", err)
	}
	return assetName, nil
}

// clearStaging drops leftovers from earlier runs so the staged tree holds
// exactly this release.
func (c *Client) clearStaging() error {
	if err := os.RemoveAll(c.settings.ExtractDir); err != nil {
		return fmt.Errorf("failed to clear staging: %w", err)
	}
	if err := os.MkdirAll(c.settings.ExtractDir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate staging: %w", err)
	}
	return nil
}

// stageBinary copies a downloaded asset into the staged tree as an
// executable.
func stageBinary(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// purgeOldArchives removes downloaded archives other than the named ones.
func (c *Client) purgeOldArchives(keep ...string) {
	entries, err := os.ReadDir(c.settings.DownloadDir)
	if err != nil {
		log.WithError(err).Debug("skipping archive purge")
		return
	}

	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		if name != "" {
			keepSet[name] = true
		}
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || keepSet[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(c.settings.DownloadDir, entry.Name())); err != nil {
			log.WithError(err).WithField("archive", entry.Name()).Warn("failed to remove old archive")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.WithField("count", removed).Debug("purged old archives")
	}
}

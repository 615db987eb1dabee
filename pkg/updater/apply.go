package updater

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Apply swaps the staged release into the destination: for every top-level
// entry of stagedDir, the destination entry of the same name is removed and
// the staged one moved into place. A shallow merge at the top level, full
// replace per entry. Destination entries absent from the staged tree are
// left alone.
func Apply(stagedDir, destDir string) error {
	entries, err := os.ReadDir(stagedDir)
	if err != nil {
		return &ApplyError{Err: fmt.Errorf("failed to read staged dir: %w", err)}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &ApplyError{Err: fmt.Errorf("failed to create destination: %w", err)}
	}

	for _, entry := range entries {
		src := filepath.Join(stagedDir, entry.Name())
		dst := filepath.Join(destDir, entry.Name())

		if err := replaceEntry(src, dst); err != nil {
			return &ApplyError{Entry: entry.Name(), Err: err}
		}
		log.WithField("entry", entry.Name()).Debug("replaced")
	}

	return nil
}

// Cleanup removes the staged source dir. Best-effort: a leftover staging
// dir is untidy, not a failed update.
func Cleanup(stagedDir string) {
	if err := os.RemoveAll(stagedDir); err != nil {
		log.WithError(err).WithField("dir", stagedDir).Warn("failed to remove staged dir")
	}
}

// replaceEntry removes dst and moves src into its place, falling back to a
// copy when rename is not possible (staging usually lives on another
// filesystem than the install dir).
func replaceEntry(src, dst string) error {
	if err := removeExisting(dst); err != nil {
		return err
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", src, err)
	}
	if info.IsDir() {
		return copyTree(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func removeExisting(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	if info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove dir %s: %w", path, err)
		}
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string, mode fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", dst, cerr)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

func copyTree(srcRoot, dstRoot string) error {
	return filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstRoot, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

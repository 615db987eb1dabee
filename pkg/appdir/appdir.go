// Package appdir resolves where the running application is installed and
// where its per-user update state lives.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Subdirectories created under the user state dir.
const (
	metadataSubdir = "metadata"
	downloadSubdir = "downloads"
	extractSubdir  = "extracted"
)

// InstallLocation describes the two directory roots the update flow works
// against: the live application tree, replaced during an install, and a
// writable per-user state area that persists across invocations.
type InstallLocation struct {
	InstallDir   string `json:"install_dir" yaml:"install_dir"`
	UserStateDir string `json:"user_state_dir" yaml:"user_state_dir"`
}

// MetadataDir returns the directory holding trust metadata files.
func (l InstallLocation) MetadataDir() string {
	return filepath.Join(l.UserStateDir, metadataSubdir)
}

// DownloadDir returns the directory release archives are downloaded into.
func (l InstallLocation) DownloadDir() string {
	return filepath.Join(l.UserStateDir, downloadSubdir)
}

// ExtractDir returns the staging directory releases are extracted into.
func (l InstallLocation) ExtractDir() string {
	return filepath.Join(l.UserStateDir, extractSubdir)
}

// EnsureStateDirs creates the metadata, download and extraction directories
// under UserStateDir. Safe to call repeatedly.
func (l InstallLocation) EnsureStateDirs() error {
	for _, dir := range []string{l.MetadataDir(), l.DownloadDir(), l.ExtractDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state dir %s: %w", dir, err)
		}
	}
	return nil
}

// Swappable for testing.
var (
	osExecutable = os.Executable
	osGetwd      = os.Getwd
)

// Resolve derives the install location for appName. The install dir is the
// directory of the running executable; under `go run` the working directory
// stands in for it. The user state dir is the platform's per-user data
// location and is never the install dir.
func Resolve(appName string) (InstallLocation, error) {
	if appName == "" {
		return InstallLocation{}, fmt.Errorf("app name must not be empty")
	}

	install, err := installDir()
	if err != nil {
		return InstallLocation{}, err
	}

	state, err := userStateDir(appName)
	if err != nil {
		return InstallLocation{}, err
	}

	if install == state {
		return InstallLocation{}, fmt.Errorf("install dir and state dir resolve to the same path: %s", install)
	}

	return InstallLocation{InstallDir: install, UserStateDir: state}, nil
}

func installDir() (string, error) {
	exe, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	if runFromBuildCache(exe) {
		wd, err := osGetwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		return wd, nil
	}

	return filepath.Dir(exe), nil
}

// runFromBuildCache reports whether exe is a `go run` scratch binary rather
// than an installed one. Those live in a go-build directory under the build
// cache, and their location says nothing about where the app is installed.
func runFromBuildCache(exe string) bool {
	return strings.Contains(filepath.ToSlash(filepath.Dir(exe)), "/go-build")
}

func userStateDir(appName string) (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		return filepath.Join(home, "AppData", "Local", appName), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil

	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		return filepath.Join(home, ".local", "share", appName), nil
	}
}

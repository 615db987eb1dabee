// Package config handles molt configuration parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultAppName is used when app_name is unset.
	DefaultAppName = "molt"

	// EnvConfig names the environment variable that overrides config file
	// discovery.
	EnvConfig = "MOLTFILE"
)

// File is the parsed molt configuration.
type File struct {
	Version          int     `yaml:"version" toml:"version" json:"version"`
	AppName          string  `yaml:"app_name,omitempty" toml:"app_name,omitempty" json:"app_name,omitempty"`
	MetadataURL      string  `yaml:"metadata_url,omitempty" toml:"metadata_url,omitempty" json:"metadata_url,omitempty"`
	DownloadURL      string  `yaml:"download_url,omitempty" toml:"download_url,omitempty" json:"download_url,omitempty"`
	Updater          Updater `yaml:"updater,omitempty" toml:"updater,omitempty" json:"updater,omitempty"`
	KeepArchives     *int    `yaml:"keep_archives,omitempty" toml:"keep_archives,omitempty" json:"keep_archives,omitempty"`
	PurgeOldArchives bool    `yaml:"purge_old_archives,omitempty" toml:"purge_old_archives,omitempty" json:"purge_old_archives,omitempty"`
	Log              Log     `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
}

// Updater configures the detached updater process. In the config file it can
// be written as a plain string (the binary name) or as a table with
// name, wait_timeout and settle_delay keys.
type Updater struct {
	Name        string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	WaitTimeout string `yaml:"wait_timeout,omitempty" toml:"wait_timeout,omitempty" json:"wait_timeout,omitempty"`
	SettleDelay string `yaml:"settle_delay,omitempty" toml:"settle_delay,omitempty" json:"settle_delay,omitempty"`
}

// WaitTimeoutDuration returns the parsed wait timeout, or zero when unset.
func (u *Updater) WaitTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(u.WaitTimeout)
	return d
}

// SettleDelayDuration returns the parsed settle delay, or zero when unset.
func (u *Updater) SettleDelayDuration() time.Duration {
	d, _ := time.ParseDuration(u.SettleDelay)
	return d
}

// Log configures diagnostic logging.
type Log struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	File  string `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty"`
}

// App returns the configured application name, falling back to the default.
func (f *File) App() string {
	if f.AppName != "" {
		return f.AppName
	}
	return DefaultAppName
}

// Keep returns the configured archive keep count, or def when unset.
func (f *File) Keep(def int) int {
	if f.KeepArchives != nil {
		return *f.KeepArchives
	}
	return def
}

// Find searches for a molt config file in the standard locations.
// Returns the path of the first file found, or an error if none exists.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	// Search paths in order of precedence.
	var searchPaths []string

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	searchPaths = append(searchPaths, filepath.Join(xdgConfig, "molt"))
	searchPaths = append(searchPaths, home)

	fileNames := []string{
		"molt.toml",
		"molt.yaml",
		"molt.yml",
		"molt.json",
		".molt.toml",
		".molt.yaml",
		".molt.yml",
		".molt.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no molt config file found in standard locations")
}

// Load reads and parses a molt config file from the given path.
func Load(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	file, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(file); err != nil {
		return nil, err
	}

	return file, nil
}

// LoadOrDefault loads the discovered config file, or returns an empty
// config when none exists. An explicit path that cannot be loaded is an
// error; a merely absent file is not.
func LoadOrDefault(explicitPath string) (*File, error) {
	path, err := Find(explicitPath)
	if err != nil {
		if explicitPath != "" {
			return nil, err
		}
		return &File{}, nil
	}
	return Load(path)
}

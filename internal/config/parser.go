// Package config handles molt configuration parsing and location resolution.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the file format of a config file.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

// detectFormat determines the file format based on extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	// JSON starts with { or [
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return FormatJSON
	}

	// TOML typically has [sections] or key = value with = sign
	// YAML uses key: value with : sign
	if strings.Contains(trimmed, " = ") || strings.HasPrefix(trimmed, "[") {
		lines := strings.Split(trimmed, "\n")
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.Contains(line, " = ") || strings.HasPrefix(line, "[") {
				return FormatTOML
			}
			// If we see : without =, it's likely YAML
			if strings.Contains(line, ":") && !strings.Contains(line, "=") {
				return FormatYAML
			}
		}
	}

	// Default to YAML if we see colons
	if strings.Contains(trimmed, ":") {
		return FormatYAML
	}

	return FormatUnknown
}

// rawFile is an intermediate representation for parsing. It handles the
// flexible updater format (string or table).
type rawFile struct {
	Version          int         `yaml:"version" toml:"version" json:"version"`
	AppName          string      `yaml:"app_name" toml:"app_name" json:"app_name"`
	MetadataURL      string      `yaml:"metadata_url" toml:"metadata_url" json:"metadata_url"`
	DownloadURL      string      `yaml:"download_url" toml:"download_url" json:"download_url"`
	Updater          interface{} `yaml:"updater" toml:"updater" json:"updater"`
	KeepArchives     *int        `yaml:"keep_archives" toml:"keep_archives" json:"keep_archives"`
	PurgeOldArchives bool        `yaml:"purge_old_archives" toml:"purge_old_archives" json:"purge_old_archives"`
	Log              Log         `yaml:"log" toml:"log" json:"log"`
}

// parseUpdater converts the flexible updater format to an Updater struct.
// The updater can be specified as:
//   - Simple string: the updater binary name (e.g. "molt-updater")
//   - Table with name, wait_timeout and settle_delay fields
func parseUpdater(raw interface{}) (Updater, error) {
	switch v := raw.(type) {
	case nil:
		return Updater{}, nil

	case string:
		return Updater{Name: v}, nil

	case map[string]interface{}:
		updater := Updater{}
		if name, ok := v["name"].(string); ok {
			updater.Name = name
		}
		if timeout, ok := v["wait_timeout"].(string); ok {
			updater.WaitTimeout = timeout
		}
		if settle, ok := v["settle_delay"].(string); ok {
			updater.SettleDelay = settle
		}
		return updater, nil

	default:
		return Updater{}, fmt.Errorf("updater: invalid format (expected string or table)")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content.
func expandEnvVars(content []byte) []byte {
	result := envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := os.Getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			// Use default value
			value = string(parts[2])
		}

		return []byte(value)
	})

	return result
}

// parse parses the content according to the specified format.
func parse(content []byte, format Format) (*File, error) {
	// Expand environment variables first
	content = expandEnvVars(content)

	var raw rawFile

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown file format")
	}

	updater, err := parseUpdater(raw.Updater)
	if err != nil {
		return nil, err
	}

	return &File{
		Version:          raw.Version,
		AppName:          raw.AppName,
		MetadataURL:      raw.MetadataURL,
		DownloadURL:      raw.DownloadURL,
		Updater:          updater,
		KeepArchives:     raw.KeepArchives,
		PurgeOldArchives: raw.PurgeOldArchives,
		Log:              raw.Log,
	}, nil
}

// Package config handles molt configuration parsing and location resolution.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// appNamePattern validates application names; they become directory names
// under the per-user state root.
var appNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidationError represents a config file validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values.
func Validate(f *File) error {
	var errors []string

	if f.Version != 0 && f.Version != 1 {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported config version %d", f.Version),
		}.Error())
	}

	if f.AppName != "" && !appNamePattern.MatchString(f.AppName) {
		errors = append(errors, ValidationError{
			Field:   "app_name",
			Message: fmt.Sprintf("invalid app name '%s'", f.AppName),
		}.Error())
	}

	if err := validateOrigin("metadata_url", f.MetadataURL); err != nil {
		errors = append(errors, err.Error())
	}
	if err := validateOrigin("download_url", f.DownloadURL); err != nil {
		errors = append(errors, err.Error())
	}

	for _, err := range validateUpdater(f.Updater) {
		errors = append(errors, err.Error())
	}

	if f.KeepArchives != nil && *f.KeepArchives < 0 {
		errors = append(errors, ValidationError{
			Field:   "keep_archives",
			Message: "must be non-negative",
		}.Error())
	}

	if f.Log.Level != "" {
		if _, err := log.ParseLevel(f.Log.Level); err != nil {
			errors = append(errors, ValidationError{
				Field:   "log.level",
				Message: fmt.Sprintf("invalid log level '%s'", f.Log.Level),
			}.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateOrigin(field, raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: field, Message: "URL must use http or https"}
	}
	if u.Host == "" {
		return ValidationError{Field: field, Message: "URL is missing a host"}
	}

	return nil
}

func validateUpdater(u Updater) []error {
	var errors []error

	if strings.ContainsAny(u.Name, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "updater.name",
			Message: "must be a bare binary name, not a path",
		})
	}

	if err := validateDuration("updater.wait_timeout", u.WaitTimeout); err != nil {
		errors = append(errors, err)
	}
	if err := validateDuration("updater.settle_delay", u.SettleDelay); err != nil {
		errors = append(errors, err)
	}

	return errors
}

func validateDuration(field, raw string) error {
	if raw == "" {
		return nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration '%s'", raw),
		}
	}
	if d <= 0 {
		return ValidationError{
			Field:   field,
			Message: "must be positive",
		}
	}

	return nil
}

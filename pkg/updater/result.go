package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ResultFileName is the file the updater leaves behind for the relaunched
// application. There is no live channel back to the user, so the outcome is
// recorded on disk.
const ResultFileName = "updater-result.json"

// Result records the outcome of one updater run.
type Result struct {
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	TargetPID   int       `json:"target_pid"`
	Destination string    `json:"destination"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// DefaultResultPath places the result file beside the staging dir, which
// survives staging cleanup.
func DefaultResultPath(stagedSourceDir string) string {
	return filepath.Join(filepath.Dir(stagedSourceDir), ResultFileName)
}

// WriteResult writes res atomically, temp file then rename, so a reader
// never sees a partial file.
func WriteResult(path string, res Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move result into place: %w", err)
	}
	return nil
}

// ReadResult loads a result file.
func ReadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &res, nil
}

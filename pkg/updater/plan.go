package updater

import (
	"fmt"
	"os"
	"path/filepath"
)

// ActionKind says what Apply would do with one top-level entry.
type ActionKind string

const (
	ActionAdd     ActionKind = "add"
	ActionReplace ActionKind = "replace"
)

// Action is one planned top-level replacement.
type Action struct {
	Kind  ActionKind `json:"kind" yaml:"kind"`
	Entry string     `json:"entry" yaml:"entry"`
	Dir   bool       `json:"dir" yaml:"dir"`
}

func (a Action) String() string {
	suffix := ""
	if a.Dir {
		suffix = "/"
	}
	return fmt.Sprintf("%s %s%s", a.Kind, a.Entry, suffix)
}

// BuildPlan lists what Apply would do to destDir, without touching anything.
func BuildPlan(stagedDir, destDir string) ([]Action, error) {
	entries, err := os.ReadDir(stagedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged dir: %w", err)
	}

	plan := make([]Action, 0, len(entries))
	for _, entry := range entries {
		kind := ActionAdd
		if _, err := os.Lstat(filepath.Join(destDir, entry.Name())); err == nil {
			kind = ActionReplace
		}
		plan = append(plan, Action{Kind: kind, Entry: entry.Name(), Dir: entry.IsDir()})
	}

	return plan, nil
}

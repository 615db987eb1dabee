package handover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeInstaller wires the test seams and records what happened.
type fakeInstaller struct {
	*Installer

	startedPath string
	startedArgs []string
	exitCode    int
	sequence    []string
	startErr    error
}

func newFakeInstaller(t *testing.T) *fakeInstaller {
	t.Helper()

	f := &fakeInstaller{Installer: New("")}
	f.Installer.start = func(path string, args ...string) error {
		f.sequence = append(f.sequence, "start")
		f.startedPath = path
		f.startedArgs = args
		return f.startErr
	}
	f.Installer.exit = func(code int) {
		f.sequence = append(f.sequence, "exit")
		f.exitCode = code
	}
	f.Installer.pid = func() int { return 4242 }
	return f
}

func writeUpdaterBinary(t *testing.T, destDir string) string {
	t.Helper()

	path := filepath.Join(destDir, UpdaterBinaryName(UpdaterName))
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("failed to write updater stub: %v", err)
	}
	return path
}

func TestApplySpawnsUpdaterAndExits(t *testing.T) {
	dest := t.TempDir()
	staged := t.TempDir()
	updaterPath := writeUpdaterBinary(t, dest)

	f := newFakeInstaller(t)
	if err := f.Apply(staged, dest); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if f.startedPath != updaterPath {
		t.Errorf("launched %s, want %s", f.startedPath, updaterPath)
	}

	wantArgs := []string{"4242", dest, staged}
	if len(f.startedArgs) != len(wantArgs) {
		t.Fatalf("args = %v, want %v", f.startedArgs, wantArgs)
	}
	for i := range wantArgs {
		if f.startedArgs[i] != wantArgs[i] {
			t.Errorf("args[%d] = %q, want %q", i, f.startedArgs[i], wantArgs[i])
		}
	}

	if f.exitCode != ExitRestartPending {
		t.Errorf("exit code = %d, want %d", f.exitCode, ExitRestartPending)
	}
	if strings.Join(f.sequence, ",") != "start,exit" {
		t.Errorf("expected start before exit, got %v", f.sequence)
	}
}

func TestApplyMissingUpdater(t *testing.T) {
	f := newFakeInstaller(t)

	err := f.Apply(t.TempDir(), t.TempDir())
	if err == nil {
		t.Fatal("expected error when updater binary is absent")
	}

	var handoffErr *HandoffError
	if !errors.As(err, &handoffErr) {
		t.Errorf("expected *HandoffError, got %T", err)
	}
	if len(f.sequence) != 0 {
		t.Errorf("nothing should be started or exited, got %v", f.sequence)
	}
}

func TestApplyUpdaterPathIsDirectory(t *testing.T) {
	dest := t.TempDir()
	if err := os.Mkdir(filepath.Join(dest, UpdaterBinaryName(UpdaterName)), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	f := newFakeInstaller(t)
	if err := f.Apply(t.TempDir(), dest); err == nil {
		t.Fatal("expected error when updater path is a directory")
	}
	if len(f.sequence) != 0 {
		t.Errorf("nothing should be started or exited, got %v", f.sequence)
	}
}

func TestApplyStartFailure(t *testing.T) {
	dest := t.TempDir()
	writeUpdaterBinary(t, dest)

	f := newFakeInstaller(t)
	f.startErr = fmt.Errorf("fork failed")

	err := f.Apply(t.TempDir(), dest)
	if err == nil {
		t.Fatal("expected error when launch fails")
	}

	var handoffErr *HandoffError
	if !errors.As(err, &handoffErr) {
		t.Errorf("expected *HandoffError, got %T", err)
	}
	if f.exitCode != 0 || strings.Contains(strings.Join(f.sequence, ","), "exit") {
		t.Error("process must not exit when the updater failed to launch")
	}
}

func TestUpdaterBinaryName(t *testing.T) {
	got := UpdaterBinaryName("molt-updater")
	want := "molt-updater"
	if runtime.GOOS == "windows" {
		want += ".exe"
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNewDefaultsName(t *testing.T) {
	i := New("")
	if i.updaterName != UpdaterName {
		t.Errorf("got %s, want %s", i.updaterName, UpdaterName)
	}

	i = New("custom-updater")
	if i.updaterName != "custom-updater" {
		t.Errorf("got %s, want custom-updater", i.updaterName)
	}
}

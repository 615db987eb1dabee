// End-to-end tests that build the molt and molt-updater binaries and drive
// them as separate processes, the way users run them. Everything network
// facing is served from local test servers; the GitHub API itself is never
// contacted, so checks are exercised up to the point the release origin
// would be.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/molt-dev/molt/pkg/appdir"
	"github.com/molt-dev/molt/pkg/trust"
	"github.com/molt-dev/molt/pkg/update"
	"github.com/molt-dev/molt/pkg/updater"
)

var (
	moltBin    string
	updaterBin string
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	tmp, err := os.MkdirTemp("", "molt-e2e")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	moltBin = filepath.Join(tmp, "molt")
	updaterBin = filepath.Join(tmp, "molt-updater")
	if runtime.GOOS == "windows" {
		moltBin += ".exe"
		updaterBin += ".exe"
	}

	builds := []struct{ out, pkg string }{
		{moltBin, "../../cmd/molt"},
		{updaterBin, "../../cmd/molt-updater"},
	}
	for _, b := range builds {
		cmd := exec.Command("go", "build", "-o", b.out, b.pkg)
		if out, err := cmd.CombinedOutput(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to build %s: %v\n%s", b.pkg, err, out)
			os.RemoveAll(tmp)
			os.Exit(1)
		}
	}

	code := m.Run()
	os.RemoveAll(tmp)
	os.Exit(code)
}

// testEnv isolates one test behind its own HOME so runs cannot see each
// other's config files or per-user state.
type testEnv struct {
	home string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{home: t.TempDir()}
}

func (e *testEnv) environ() []string {
	return append(os.Environ(),
		"HOME="+e.home,
		"XDG_CONFIG_HOME="+filepath.Join(e.home, ".config"),
		"XDG_DATA_HOME="+filepath.Join(e.home, ".local", "share"),
		"LOCALAPPDATA="+filepath.Join(e.home, "AppData", "Local"),
		"MOLTFILE=",
		"GITHUB_TOKEN=",
	)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return e.runInput(t, "", args...)
}

func (e *testEnv) runInput(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(moltBin, args...)
	cmd.Env = e.environ()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) runEnv(t *testing.T, extraEnv []string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(moltBin, args...)
	cmd.Env = append(e.environ(), extraEnv...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// paths returns the directories the binary resolved for this environment.
func (e *testEnv) paths(t *testing.T) map[string]string {
	t.Helper()
	stdout, stderr, err := e.run(t, "paths", "--output", "json")
	if err != nil {
		t.Fatalf("paths failed: %v\nstderr: %s", err, stderr)
	}
	var report map[string]string
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("failed to parse paths output: %v\n%s", err, stdout)
	}
	return report
}

func (e *testEnv) writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.home, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// trustOrigin serves a minimal trust root under /metadata/ the way a release
// origin would.
func trustOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	root := []byte(`{"signed":{"_type":"root","spec_version":"1.0","version":1},"signatures":[]}`)
	mux := http.NewServeMux()
	mux.HandleFunc("/metadata/root.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(root)
	})
	mux.HandleFunc("/metadata/1.root.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(root)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, stderr, err := env.run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "molt version 0.0.0-dev") {
		t.Errorf("unexpected version output:\n%s", stdout)
	}

	stdout, _, err = env.run(t, "version", "--output", "json")
	if err != nil {
		t.Fatalf("version --output json failed: %v", err)
	}
	var report struct {
		Version  string `json:"version"`
		Go       string `json:"go"`
		Platform string `json:"platform"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("failed to parse version output: %v\n%s", err, stdout)
	}
	if report.Version != "0.0.0-dev" {
		t.Errorf("Version = %q, want 0.0.0-dev", report.Version)
	}
	if report.Go == "" || report.Platform == "" {
		t.Errorf("missing build info in %+v", report)
	}
}

func TestPathsCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, stderr, err := env.run(t, "paths")
	if err != nil {
		t.Fatalf("paths failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "config file:  (none)") {
		t.Errorf("expected no config file marker, got:\n%s", stdout)
	}

	report := env.paths(t)
	state := report["user_state_dir"]
	if filepath.Base(state) != "molt" {
		t.Errorf("user_state_dir = %q, want a molt directory", state)
	}
	if report["metadata_dir"] != filepath.Join(state, "metadata") {
		t.Errorf("metadata_dir = %q, want under %s", report["metadata_dir"], state)
	}
	if report["download_dir"] != filepath.Join(state, "downloads") {
		t.Errorf("download_dir = %q, want under %s", report["download_dir"], state)
	}
	if report["extract_dir"] != filepath.Join(state, "extracted") {
		t.Errorf("extract_dir = %q, want under %s", report["extract_dir"], state)
	}
	if report["install_dir"] == "" {
		t.Error("install_dir is empty")
	}
}

func TestInitCommand(t *testing.T) {
	env := newTestEnv(t)
	cfgPath := filepath.Join(env.home, "molt.toml")

	stdout, stderr, err := env.run(t, "init", "--template", "minimal", "--config", cfgPath)
	if err != nil {
		t.Fatalf("init failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Created "+cfgPath) {
		t.Errorf("missing created message:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Next steps:") {
		t.Errorf("missing next steps:\n%s", stdout)
	}
	content, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(content), "metadata_url") {
		t.Errorf("unexpected config content:\n%s", content)
	}

	// Declining the overwrite prompt leaves the file alone.
	stdout, _, err = env.runInput(t, "n\n", "init", "--template", "full", "--config", cfgPath)
	if err != nil {
		t.Fatalf("init with existing file failed: %v", err)
	}
	if !strings.Contains(stdout, "Aborted.") {
		t.Errorf("expected abort message:\n%s", stdout)
	}
	unchanged, _ := os.ReadFile(cfgPath)
	if string(unchanged) != string(content) {
		t.Error("declined overwrite still modified the file")
	}

	// --force replaces it without prompting.
	if _, stderr, err = env.run(t, "init", "--template", "full", "--config", cfgPath, "--force"); err != nil {
		t.Fatalf("init --force failed: %v\nstderr: %s", err, stderr)
	}
	replaced, _ := os.ReadFile(cfgPath)
	if !strings.Contains(string(replaced), "[updater]") {
		t.Errorf("expected full template content:\n%s", replaced)
	}
}

func TestInitDefaultLocation(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.run(t, "init", "--template", "minimal")
	if err != nil {
		t.Fatalf("init failed: %v\nstderr: %s", err, stderr)
	}

	want := filepath.Join(env.home, ".config", "molt", "molt.toml")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("config not created at default location %s: %v", want, err)
	}
}

func TestConfigDiscovery(t *testing.T) {
	env := newTestEnv(t)

	growerCfg := env.writeConfig(t, "grower.toml", "version = 1\napp_name = \"grower\"\n")
	shedderCfg := env.writeConfig(t, "shedder.toml", "version = 1\napp_name = \"shedder\"\n")

	// MOLTFILE points discovery at a specific file.
	stdout, stderr, err := env.runEnv(t, []string{"MOLTFILE=" + growerCfg}, "paths", "--output", "json")
	if err != nil {
		t.Fatalf("paths failed: %v\nstderr: %s", err, stderr)
	}
	var report map[string]string
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("failed to parse paths output: %v", err)
	}
	if filepath.Base(report["user_state_dir"]) != "grower" {
		t.Errorf("user_state_dir = %q, want grower state dir", report["user_state_dir"])
	}

	// --config wins over MOLTFILE.
	stdout, _, err = env.runEnv(t, []string{"MOLTFILE=" + growerCfg}, "paths", "--config", shedderCfg, "--output", "json")
	if err != nil {
		t.Fatalf("paths --config failed: %v", err)
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("failed to parse paths output: %v", err)
	}
	if filepath.Base(report["user_state_dir"]) != "shedder" {
		t.Errorf("user_state_dir = %q, want shedder state dir", report["user_state_dir"])
	}

	// An explicit config that does not exist is an error.
	if _, stderr, err = env.run(t, "status", "--config", filepath.Join(env.home, "missing.toml")); err == nil {
		t.Error("expected missing explicit config to fail")
	} else if !strings.Contains(stderr, "not found") {
		t.Errorf("unexpected error output:\n%s", stderr)
	}

	// So is one that fails validation.
	badCfg := env.writeConfig(t, "bad.toml", "version = 9\n")
	if _, stderr, err = env.run(t, "status", "--config", badCfg); err == nil {
		t.Error("expected invalid config to fail")
	} else if !strings.Contains(stderr, "unsupported config version") {
		t.Errorf("unexpected error output:\n%s", stderr)
	}
}

func TestCheckBootstrapsTrust(t *testing.T) {
	env := newTestEnv(t)
	origin := trustOrigin(t)

	// The download origin is deliberately not GitHub, so the check fails
	// after trust is established and before any release API call.
	cfgPath := env.writeConfig(t, "molt-e2e.toml", fmt.Sprintf(
		"version = 1\nmetadata_url = %q\ndownload_url = %q\n",
		origin.URL+"/metadata", "https://downloads.example.com/releases"))

	stdout, stderr, err := env.run(t, "status", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "trust:       uninitialized") {
		t.Errorf("expected uninitialized trust state:\n%s", stdout)
	}

	// Plant a stale mutable metadata file; bootstrap must remove it even
	// though the check itself fails.
	metadataDir := env.paths(t)["metadata_dir"]
	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(metadataDir, "timestamp.json")
	if err := os.WriteFile(stale, []byte(`{"stale":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err = env.run(t, "check", "--config", cfgPath)
	if err == nil {
		t.Fatal("expected check against a non-GitHub origin to fail")
	}
	if !strings.Contains(stderr, "not a GitHub repository") {
		t.Errorf("unexpected check error:\n%s", stderr)
	}

	for _, name := range []string{trust.RootFile, trust.VersionedRootFile} {
		info, err := os.Stat(filepath.Join(metadataDir, name))
		if err != nil {
			t.Fatalf("trust root %s missing after bootstrap: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("trust root %s is empty", name)
		}
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale timestamp.json survived the bootstrap")
	}

	stdout, _, err = env.run(t, "status", "--config", cfgPath, "--output", "json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var status struct {
		AppName    string `json:"app_name"`
		TrustState string `json:"trust_state"`
		Staged     int    `json:"staged_entries"`
	}
	if err := json.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("failed to parse status output: %v\n%s", err, stdout)
	}
	if status.AppName != "molt" {
		t.Errorf("app_name = %q, want molt", status.AppName)
	}
	if status.TrustState != "initialized" {
		t.Errorf("trust_state = %q, want initialized", status.TrustState)
	}
	if status.Staged != 0 {
		t.Errorf("staged_entries = %d, want 0", status.Staged)
	}
}

func TestCleanCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, stderr, err := env.run(t, "clean")
	if err != nil {
		t.Fatalf("clean failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "Nothing to clean.") {
		t.Errorf("expected nothing to clean:\n%s", stdout)
	}

	report := env.paths(t)
	downloads := report["download_dir"]
	staging := report["extract_dir"]
	metadata := report["metadata_dir"]
	for _, dir := range []string{downloads, staging, metadata} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"molt-1.0.0.bin", "molt-1.1.0.bin", "molt-1.2.0.bin"} {
		path := filepath.Join(downloads, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(staging, "molt"), []byte("staged"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(metadata, "timestamp.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err = env.run(t, "clean", "--keep", "1")
	if err != nil {
		t.Fatalf("clean --keep 1 failed: %v\nstderr: %s", err, stderr)
	}
	for _, want := range []string{"Metadata removed: 1", "Archives removed: 2 (kept 1)", "Staging cleared."} {
		if !strings.Contains(stdout, want) {
			t.Errorf("missing %q in clean output:\n%s", want, stdout)
		}
	}

	// Newest archive survives and staging is an empty dir again.
	if _, err := os.Stat(filepath.Join(downloads, "molt-1.2.0.bin")); err != nil {
		t.Errorf("newest archive removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(downloads, "molt-1.0.0.bin")); !os.IsNotExist(err) {
		t.Error("oldest archive survived")
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("staging dir gone: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging not cleared: %d entries", len(entries))
	}
}

func TestStatusReportsLastResult(t *testing.T) {
	env := newTestEnv(t)

	state := env.paths(t)["user_state_dir"]
	if err := os.MkdirAll(state, 0o755); err != nil {
		t.Fatal(err)
	}
	res := updater.Result{
		Success:    true,
		TargetPID:  4242,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := updater.WriteResult(filepath.Join(state, updater.ResultFileName), res); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "last update: succeeded") {
		t.Errorf("expected last update line:\n%s", stdout)
	}

	// Status only reports; the result stays for the next update run.
	if _, err := os.Stat(filepath.Join(state, updater.ResultFileName)); err != nil {
		t.Errorf("status consumed the result file: %v", err)
	}
}

// startSleeper launches a process for the updater binary to wait on. A
// reaper goroutine makes the pid disappear as soon as it exits; otherwise
// the zombie would still answer liveness probes.
func startSleeper(t *testing.T, seconds string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", seconds)
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleeper: %v", err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
	})
	return cmd
}

func TestUpdaterBinaryAppliesStagedRelease(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep as the target process")
	}

	state := t.TempDir()
	staged := filepath.Join(state, "extracted")
	if err := os.MkdirAll(staged, 0o755); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(dest, "molt"), []byte("old build"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staged, "molt"), []byte("new build"), 0o755); err != nil {
		t.Fatal(err)
	}

	sleeper := startSleeper(t, "0.3")

	cmd := exec.Command(updaterBin,
		strconv.Itoa(sleeper.Process.Pid), dest, staged,
		"--settle=0", "--timeout=5s", "--poll=25ms")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("updater failed: %v\n%s", err, out)
	}

	got, err := os.ReadFile(filepath.Join(dest, "molt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new build" {
		t.Errorf("destination content = %q, want new build", got)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staging dir not removed")
	}

	res, err := updater.ReadResult(filepath.Join(state, updater.ResultFileName))
	if err != nil {
		t.Fatalf("result file not written: %v", err)
	}
	if !res.Success || res.Error != "" {
		t.Errorf("result = %+v, want success", res)
	}
	if info, err := os.Stat(filepath.Join(state, "updater.log")); err != nil || info.Size() == 0 {
		t.Errorf("updater log missing or empty: %v", err)
	}
}

func TestUpdaterBinaryForceKillsStubbornTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep as the target process")
	}

	state := t.TempDir()
	staged := filepath.Join(state, "extracted")
	if err := os.MkdirAll(staged, 0o755); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := os.WriteFile(filepath.Join(staged, "molt"), []byte("forced build"), 0o755); err != nil {
		t.Fatal(err)
	}

	sleeper := startSleeper(t, "60")

	cmd := exec.Command(updaterBin,
		strconv.Itoa(sleeper.Process.Pid), dest, staged,
		"--settle=0", "--timeout=300ms", "--poll=25ms")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("updater failed: %v\n%s", err, out)
	}

	got, err := os.ReadFile(filepath.Join(dest, "molt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "forced build" {
		t.Errorf("destination content = %q, want forced build", got)
	}
}

func TestUpdaterBinaryExitCodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a dead unix pid")
	}

	exitCode := func(args ...string) int {
		cmd := exec.Command(updaterBin, args...)
		err := cmd.Run()
		if err == nil {
			return 0
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("updater did not run: %v", err)
		}
		return exitErr.ExitCode()
	}

	if code := exitCode(); code != updater.ExitUsage {
		t.Errorf("no args: exit %d, want %d", code, updater.ExitUsage)
	}
	if code := exitCode("abc", t.TempDir(), t.TempDir()); code != updater.ExitUsage {
		t.Errorf("bad pid: exit %d, want %d", code, updater.ExitUsage)
	}

	// A valid invocation whose staged dir is missing reports no-stage and
	// leaves a failure result behind.
	probe := exec.Command("true")
	if err := probe.Run(); err != nil {
		t.Fatal(err)
	}
	state := t.TempDir()
	staged := filepath.Join(state, "extracted")
	if code := exitCode(strconv.Itoa(probe.Process.Pid), t.TempDir(), staged,
		"--settle=0", "--timeout=1s", "--poll=25ms"); code != updater.ExitNoStage {
		t.Errorf("missing stage: exit %d, want %d", code, updater.ExitNoStage)
	}
	res, err := updater.ReadResult(filepath.Join(state, updater.ResultFileName))
	if err != nil {
		t.Fatalf("result file not written: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want recorded failure", res)
	}
}

// stagingClient stands in for the external verification stack: it offers one
// release and stages a single-file payload, so the flow around it runs for
// real.
type stagingClient struct {
	settings update.Settings
	release  *update.Release
	payload  []byte
}

func (c *stagingClient) CheckForUpdates(ctx context.Context) (*update.Release, error) {
	return c.release, nil
}

func (c *stagingClient) DownloadAndApply(ctx context.Context, rel *update.Release, opts update.StageOptions, install update.InstallRunner) error {
	archive := filepath.Join(c.settings.DownloadDir, rel.Filename)
	if err := os.WriteFile(archive, c.payload, 0o644); err != nil {
		return err
	}
	staged := filepath.Join(c.settings.ExtractDir, c.settings.AppName)
	if err := os.WriteFile(staged, c.payload, 0o755); err != nil {
		return err
	}
	return install.Apply(c.settings.ExtractDir, c.settings.InstallDir)
}

// TestFullUpdateFlow runs the whole lifecycle in one process: bootstrap
// trust from a local origin, check, stage, apply with the updater state
// machine, then read the recorded result the way a relaunched application
// would.
func TestFullUpdateFlow(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a dead unix pid")
	}

	install := t.TempDir()
	state := t.TempDir()
	appPath := filepath.Join(install, "molt")
	if err := os.WriteFile(appPath, []byte("old build"), 0o755); err != nil {
		t.Fatal(err)
	}

	origin := trustOrigin(t)
	loc := &appdir.InstallLocation{InstallDir: install, UserStateDir: state}
	payload := []byte("new build 1.1.0")

	cfg := update.Config{
		AppName:        "molt",
		CurrentVersion: "1.0.0",
		MetadataURL:    origin.URL + "/metadata",
		DownloadURL:    "https://github.com/molt-dev/molt-releases/releases/download",
		Location:       loc,
		Factory: func(s update.Settings) (update.VerificationClient, error) {
			return &stagingClient{
				settings: s,
				release:  &update.Release{Version: "1.1.0", Filename: "molt-1.1.0.bin", Size: int64(len(payload))},
				payload:  payload,
			}, nil
		},
	}

	ctx := context.Background()
	agent, err := update.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, name := range []string{trust.RootFile, trust.VersionedRootFile} {
		if _, err := os.Stat(filepath.Join(loc.MetadataDir(), name)); err != nil {
			t.Fatalf("trust root %s missing after bootstrap: %v", name, err)
		}
	}

	rel, err := agent.CheckForUpdates(ctx)
	if err != nil {
		t.Fatalf("CheckForUpdates failed: %v", err)
	}
	if rel == nil || rel.Version != "1.1.0" {
		t.Fatalf("release = %+v, want 1.1.0", rel)
	}

	staged, err := agent.Stage(ctx, rel)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if staged.SourceDir != loc.ExtractDir() {
		t.Errorf("SourceDir = %q, want %q", staged.SourceDir, loc.ExtractDir())
	}

	// The application would spawn the updater and exit here; stand in for
	// it with an already-exited process and run the state machine directly.
	probe := exec.Command("true")
	if err := probe.Run(); err != nil {
		t.Fatal(err)
	}
	inv := updater.Invocation{
		TargetPID:       probe.Process.Pid,
		DestinationDir:  install,
		StagedSourceDir: staged.SourceDir,
	}
	opts := updater.Options{
		WaitTimeout:  2 * time.Second,
		PollInterval: 20 * time.Millisecond,
		ResultPath:   updater.DefaultResultPath(staged.SourceDir),
	}
	if err := updater.Run(ctx, inv, opts); err != nil {
		t.Fatalf("updater run failed: %v", err)
	}

	got, err := os.ReadFile(appPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("installed content = %q, want %q", got, payload)
	}
	if _, err := os.Stat(staged.SourceDir); !os.IsNotExist(err) {
		t.Error("staging dir not removed after apply")
	}
	if _, err := os.Stat(filepath.Join(loc.MetadataDir(), trust.RootFile)); err != nil {
		t.Errorf("trust root lost during apply: %v", err)
	}

	// The relaunched application reads the outcome exactly once.
	agent, err = update.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New after update failed: %v", err)
	}
	res := agent.LastUpdateResult()
	if res == nil {
		t.Fatal("no update result recorded")
	}
	if !res.Success {
		t.Errorf("result = %+v, want success", res)
	}
	if res.TargetPID != probe.Process.Pid {
		t.Errorf("TargetPID = %d, want %d", res.TargetPID, probe.Process.Pid)
	}
	if again := agent.LastUpdateResult(); again != nil {
		t.Error("update result was not consumed")
	}
}

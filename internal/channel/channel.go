// Package channel implements the verification client the molt CLI ships
// with: a GitHub releases channel with SHA-256 checksum verification.
// Embeddings that need signed metadata plug their own
// update.VerificationClient into the agent instead.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/molt-dev/molt/pkg/update"
)

const (
	// checksumsAsset is the checksum manifest published with every release.
	checksumsAsset = "SHA256SUMS"

	apiBaseURL = "https://api.github.com"
)

// Client talks to a GitHub releases channel.
type Client struct {
	settings update.Settings
	owner    string
	repo     string
	token    string // Optional, for rate limiting
	api      string // Base URL for the GitHub API (overridable in tests)
	http     *http.Client
}

// New builds a channel client from the agent settings; it is an
// update.ClientFactory. The download origin must be a GitHub repository
// URL, anything else needs a custom client.
func New(s update.Settings) (update.VerificationClient, error) {
	owner, repo, err := parseGitHubOrigin(s.DownloadURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		settings: s,
		owner:    owner,
		repo:     repo,
		token:    os.Getenv("GITHUB_TOKEN"),
		api:      apiBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// WithToken sets an optional GitHub token for authentication.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// parseGitHubOrigin extracts owner and repository from a GitHub download
// origin such as https://github.com/owner/repo/releases/download.
func parseGitHubOrigin(origin string) (string, string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", "", fmt.Errorf("invalid download origin: %w", err)
	}
	if u.Host != "github.com" && u.Host != "www.github.com" {
		return "", "", fmt.Errorf("download origin %s is not a GitHub repository; provide a custom verification client", origin)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("download origin %s is missing owner/repository", origin)
	}

	return parts[0], parts[1], nil
}

// githubRelease represents a GitHub release response.
type githubRelease struct {
	TagName    string        `json:"tag_name"`
	Name       string        `json:"name"`
	Prerelease bool          `json:"prerelease"`
	Assets     []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// CheckForUpdates asks the channel for its latest release and returns it
// when newer than the running version, or nil when up to date.
func (c *Client) CheckForUpdates(ctx context.Context) (*update.Release, error) {
	platform := Detect()
	if !platform.IsSupported() {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}

	release, err := c.latestRelease(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest release: %w", err)
	}

	latest, err := goversion.NewVersion(strings.TrimPrefix(release.TagName, "v"))
	if err != nil {
		return nil, fmt.Errorf("release tag %q is not a version: %w", release.TagName, err)
	}

	current, err := goversion.NewVersion(c.settings.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid current version: %w", err)
	}
	if !latest.GreaterThan(current) {
		log.WithFields(log.Fields{
			"current": current.String(),
			"channel": latest.String(),
		}).Debug("channel has no newer release")
		return nil, nil
	}

	assetName := platform.AssetName(c.settings.AppName)
	asset := findAsset(release, assetName)
	if asset == nil {
		return nil, fmt.Errorf("release %s has no asset %s", latest, assetName)
	}

	return &update.Release{
		Version:  latest.Original(),
		Filename: asset.Name,
		Size:     asset.Size,
	}, nil
}

// latestRelease fetches the latest release from the GitHub API.
func (c *Client) latestRelease(ctx context.Context) (*githubRelease, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.api, c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &release, nil
}

func findAsset(release *githubRelease, name string) *githubAsset {
	for i := range release.Assets {
		if release.Assets[i].Name == name {
			return &release.Assets[i]
		}
	}
	return nil
}

package channel

import (
	"fmt"
	"runtime"
)

// Platform describes a build target the channel publishes binaries for.
type Platform struct {
	OS   string
	Arch string
}

// Detect returns the running platform.
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// AssetName returns the released asset name for base on this platform,
// for example "molt-linux-amd64".
func (p Platform) AssetName(base string) string {
	name := fmt.Sprintf("%s-%s-%s", base, p.OS, p.Arch)
	if p.OS == "windows" {
		name += ".exe"
	}
	return name
}

// executableName returns the installed file name for base.
func (p Platform) executableName(base string) string {
	if p.OS == "windows" {
		return base + ".exe"
	}
	return base
}

// IsSupported returns true if the platform has published binaries.
func (p Platform) IsSupported() bool {
	supported := map[string][]string{
		"darwin":  {"amd64", "arm64"},
		"linux":   {"amd64", "arm64"},
		"windows": {"amd64", "arm64"},
	}

	arches, ok := supported[p.OS]
	if !ok {
		return false
	}
	for _, arch := range arches {
		if arch == p.Arch {
			return true
		}
	}
	return false
}

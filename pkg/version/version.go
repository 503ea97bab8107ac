// Package version carries build metadata for the ssh-api binaries.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build information. Populated at build-time via -ldflags
var (
	// Version is the semantic version (e.g., "v1.0.0")
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitDirty indicates if there were uncommitted changes
	GitDirty = ""
)

func dirty() bool {
	return GitDirty == "true"
}

// GetVersion returns the one-line banner printed by the version commands:
// ssh-api-server v0.1.0 (abc1234 2025-11-14T21:51:00Z)
func GetVersion(name string) string {
	commit := GitCommit
	if dirty() {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (%s %s)", name, Version, commit, BuildTime)
}

// Short returns the bare version without a leading "v", as reported to
// protocol peers.
func Short() string {
	v := strings.TrimPrefix(Version, "v")
	if dirty() {
		v += "+dirty"
	}
	return v
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() string {
	state := "clean"
	if dirty() {
		state = "dirty"
	}

	return fmt.Sprintf(`Version:    %s
Git commit: %s (%s)
Built:      %s
Go version: %s
Platform:   %s/%s`,
		Version,
		GitCommit,
		state,
		BuildTime,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

package sshexec

import (
	"fmt"
	"os/exec"
	"strings"
)

// PreflightResult describes the ssh client the runner will execute.
type PreflightResult struct {
	Binary  string
	Path    string
	Version string
}

// Preflight resolves binary on PATH and asks it for its version. A missing
// binary is reported as an error; every request would fail to spawn.
func Preflight(binary string) (*PreflightResult, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	result := &PreflightResult{Binary: binary}

	path, err := exec.LookPath(binary)
	if err != nil {
		return result, fmt.Errorf("ssh client %q not found: %w", binary, err)
	}
	result.Path = path

	// OpenSSH prints its version on stderr and exits 0.
	out, err := exec.Command(path, "-V").CombinedOutput()
	if err == nil {
		result.Version = strings.TrimSpace(string(out))
	}
	return result, nil
}

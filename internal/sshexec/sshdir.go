package sshexec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamikazebr/ssh-api/pkg/utils"
)

// DirError reports an SSH directory that failed the security or
// filesystem checks.
type DirError struct {
	Message string
}

func (e *DirError) Error() string {
	return e.Message
}

// allowedDirPrefixes lists the locations absolute or traversing ssh_dir
// values must resolve under. The current user's home is added at call time.
var allowedDirPrefixes = []string{"/home/", "/Users/"}

// ValidateSSHDir checks an already shape-validated ssh_dir and returns it
// with "~" expanded. An empty dir is accepted as-is.
func ValidateSSHDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}

	expanded := utils.ExpandHome(dir)

	if strings.Contains(dir, "..") || strings.HasPrefix(dir, "/") {
		if !underAllowedPrefix(filepath.Clean(expanded)) {
			return "", &DirError{Message: "SSH directory path not allowed"}
		}
	}

	info, err := os.Stat(expanded)
	if err != nil || !info.IsDir() {
		return "", &DirError{Message: fmt.Sprintf("SSH directory does not exist: %s", expanded)}
	}
	if !readable(expanded) {
		return "", &DirError{Message: fmt.Sprintf("SSH directory is not readable: %s", expanded)}
	}

	return expanded, nil
}

func underAllowedPrefix(path string) bool {
	for _, prefix := range allowedDirPrefixes {
		if utils.HasPathPrefix(path, prefix) {
			return true
		}
	}
	return utils.HasPathPrefix(path, utils.HomeDir())
}

// configFile returns the ssh_config inside dir, or "" when there is none.
func configFile(dir string) string {
	if dir == "" {
		return ""
	}
	dir = utils.ExpandHome(dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	cfg := filepath.Join(dir, "config")
	if _, err := os.Stat(cfg); err != nil {
		return ""
	}
	return cfg
}

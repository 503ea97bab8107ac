package utils

import (
	"os"
	"os/user"
)

// GetActualUser returns the actual user info, automatically detecting SUDO_USER
// when running with sudo. This keeps "~" in SSH paths pointing at the real
// user's home directory rather than root's when the service is started via sudo.
//
// Returns:
//   - username: The actual user's username
//   - homeDir: The actual user's home directory path
//   - err: Error if user detection fails
//
// Example:
//
//	When running: sudo ./ssh-api-server serve
//	Returns: ("deploy", "/home/deploy", nil)
//	Not: ("root", "/root", nil)
func GetActualUser() (username, homeDir string, err error) {
	// Check if running under sudo (SUDO_USER is automatically set by sudo)
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		u, err := user.Lookup(sudoUser)
		if err == nil {
			return u.Username, u.HomeDir, nil
		}
		// If lookup fails, fall through to standard method
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", err
	}

	// Get username (best effort)
	u, err := user.Current()
	if err != nil {
		return "", home, nil
	}

	return u.Username, home, nil
}

// HomeDir returns the actual user's home directory, or "" when it cannot be
// determined.
func HomeDir() string {
	_, home, err := GetActualUser()
	if err != nil {
		return ""
	}
	return home
}

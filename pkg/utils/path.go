package utils

import (
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading "~" or "~/" to the actual user's home
// directory. Other forms ("~other/...") are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home := HomeDir()
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// HasPathPrefix reports whether path equals prefix or lies beneath it.
// A trailing separator on prefix is honoured as-is.
func HasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

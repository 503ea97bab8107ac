package sshexec

import "strconv"

// EphemeralDefaults keep every invocation non-interactive, quiet and free of
// known_hosts writes. Host key checking is off unless the caller asks for it.
var EphemeralDefaults = []string{
	"-o", "BatchMode=yes",
	"-o", "UserKnownHostsFile=/dev/null",
	"-o", "StrictHostKeyChecking=no",
	"-o", "CheckHostIP=no",
	"-o", "LogLevel=ERROR",
}

// BuildArgs returns the ssh argument vector for req, excluding the binary.
// The remote command always follows "--" as a single token.
//
// StrictHostKeyChecking is appended after the "=no" default, and OpenSSH keeps
// the first value given for an option, so a stock client still runs with "no".
func BuildArgs(req Request) []string {
	args := make([]string, 0, len(EphemeralDefaults)+len(req.ExtraOpts)+12)
	args = append(args, EphemeralDefaults...)

	if req.Port > 0 {
		args = append(args, "-p", strconv.Itoa(req.Port))
	}
	if cfg := configFile(req.SSHDir); cfg != "" {
		args = append(args, "-F", cfg)
	}
	if req.StrictHostKeyChecking != "" {
		args = append(args, "-o", "StrictHostKeyChecking="+req.StrictHostKeyChecking)
	}
	if req.ProxyJump != "" {
		args = append(args, "-J", req.ProxyJump)
	}
	if req.AllocateTTY {
		args = append(args, "-t")
	}
	args = append(args, req.ExtraOpts...)

	return append(args, req.Target(), "--", req.Command)
}

//go:build windows

package sshexec

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

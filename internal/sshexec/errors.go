package sshexec

import (
	"errors"
	"fmt"
)

// TimeoutExitCode is reported when the ssh client is killed for exceeding
// its timeout, matching timeout(1).
const TimeoutExitCode = 124

// ErrTimeout is returned alongside the sentinel timeout Result.
var ErrTimeout = errors.New("ssh command timed out")

// SpawnError wraps failures to start the ssh client.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

package sshexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/kamikazebr/ssh-api/internal/logging"
)

// DefaultBinary is the ssh client looked up on PATH.
const DefaultBinary = "ssh"

// defaultWaitDelay bounds how long Wait keeps draining pipes after the
// client exits or is killed.
const defaultWaitDelay = 2 * time.Second

// Runner executes validated requests with the system ssh binary.
type Runner struct {
	binary    string
	logger    zerolog.Logger
	waitDelay time.Duration

	mu     sync.Mutex
	active map[*exec.Cmd]struct{}
}

// NewRunner creates a Runner using the given ssh binary ("" selects ssh).
func NewRunner(binary string, logger zerolog.Logger) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{
		binary:    binary,
		logger:    logger,
		waitDelay: defaultWaitDelay,
		active:    make(map[*exec.Cmd]struct{}),
	}
}

// Binary returns the ssh client the runner invokes.
func (r *Runner) Binary() string {
	return r.binary
}

// Command renders the full command line for req, shell-quoted.
func (r *Runner) Command(req Request) string {
	return shellquote.Join(append([]string{r.binary}, BuildArgs(req)...)...)
}

// Run executes req and waits for it to finish or time out.
//
// On timeout the client's process group is killed and the sentinel Result
// (exit 124, stderr "timeout") is returned together with ErrTimeout. A
// client that cannot be started yields a *SpawnError. Any exit code from a
// started client, zero or not, is a successful Run.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log := r.logger.With().
		Str("exec_id", uuid.NewString()).
		Str("target", req.Target()).
		Logger()
	log.Debug().Str("argv", logging.Redact(r.Command(req))).Int("timeout", timeout).Msg("starting ssh")

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.binary, BuildArgs(req)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.waitDelay
	configureProcess(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start ssh")
		return Result{}, &SpawnError{Binary: r.binary, Err: err}
	}
	r.track(cmd)
	err := cmd.Wait()
	r.untrack(cmd)
	elapsed := roundSeconds(time.Since(start))

	if err != nil && ctx.Err() != nil {
		return Result{}, fmt.Errorf("ssh run aborted: %w", ctx.Err())
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Warn().Float64("duration_seconds", elapsed).Msg("ssh timed out")
		return Result{
			ExitCode:        TimeoutExitCode,
			Stdout:          "",
			Stderr:          "timeout",
			DurationSeconds: elapsed,
		}, ErrTimeout
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return Result{}, fmt.Errorf("wait for ssh: %w", err)
	}

	res := Result{
		ExitCode:        exitCode(cmd.ProcessState),
		Stdout:          decodeOutput(stdout.Bytes()),
		Stderr:          decodeOutput(stderr.Bytes()),
		DurationSeconds: elapsed,
	}
	log.Debug().Int("exit_code", res.ExitCode).Float64("duration_seconds", elapsed).Msg("ssh finished")
	return res, nil
}

// Active returns the number of ssh clients currently running.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Abort kills every running client (its whole process group on unix) and
// returns how many were signalled. Their Run calls return the kill exit code.
func (r *Runner) Abort() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cmd := range r.active {
		if err := cmd.Cancel(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.logger.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("failed to kill ssh")
		}
	}
	return len(r.active)
}

func (r *Runner) track(cmd *exec.Cmd) {
	r.mu.Lock()
	r.active[cmd] = struct{}{}
	r.mu.Unlock()
}

func (r *Runner) untrack(cmd *exec.Cmd) {
	r.mu.Lock()
	delete(r.active, cmd)
	r.mu.Unlock()
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func decodeOutput(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/internal/sshexec"
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run one SSH command locally and print the result as JSON",
	Long: `Validates and runs a single command exactly as POST /run would, without
starting the HTTP server. The process exit code mirrors the remote exit code.`,
	Example: `  ssh-api-server exec --host web1 --command "uptime"
  ssh-api-server exec --host db --user admin --port 2222 --timeout 10 --command "df -h"`,
	RunE: runExecCommand,
}

func init() {
	addExecFlags(execCmd)
}

func addExecFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("host", "", "SSH host or alias (required)")
	f.String("command", "", "Non-interactive command to run (required)")
	f.String("user", "", "Remote user")
	f.Int("port", 0, "Remote port")
	f.Int("timeout", sshexec.DefaultTimeout, "Timeout in seconds")
	f.String("ssh-dir", "", "SSH directory (default from SSH_DIR)")
	f.String("strict-host-key-checking", "", "Host key checking: yes, no, accept-new")
	f.String("proxy-jump", "", "ProxyJump host")
	f.Bool("tty", false, "Force pseudo-terminal allocation")
	f.StringArray("extra-opt", nil, "Raw ssh flag, repeatable")
}

// flagParams maps set flags onto request parameters so unset flags stay
// absent, the same as omitted JSON keys.
func flagParams(cmd *cobra.Command) (map[string]any, error) {
	f := cmd.Flags()
	params := map[string]any{}

	strFlags := map[string]string{
		"host":                     "host",
		"command":                  "command",
		"user":                     "user",
		"ssh-dir":                  "ssh_dir",
		"strict-host-key-checking": "strict_host_key_checking",
		"proxy-jump":               "proxy_jump",
	}
	for flag, key := range strFlags {
		if !f.Changed(flag) {
			continue
		}
		v, err := f.GetString(flag)
		if err != nil {
			return nil, err
		}
		params[key] = v
	}

	for _, flag := range []string{"port", "timeout"} {
		if !f.Changed(flag) {
			continue
		}
		v, err := f.GetInt(flag)
		if err != nil {
			return nil, err
		}
		params[flag] = v
	}

	if f.Changed("tty") {
		v, err := f.GetBool("tty")
		if err != nil {
			return nil, err
		}
		params["allocate_tty"] = v
	}

	if f.Changed("extra-opt") {
		v, err := f.GetStringArray("extra-opt")
		if err != nil {
			return nil, err
		}
		params["extra_opts"] = v
	}

	return params, nil
}

func runExecCommand(cmd *cobra.Command, args []string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	params, err := flagParams(cmd)
	if err != nil {
		return err
	}

	req, err := sshexec.ParseRequest(params)
	if err != nil {
		return err
	}

	sshDir := cfg.SSHDir
	if v, ok := params["ssh_dir"].(string); ok {
		sshDir = v
	}
	if req.SSHDir, err = sshexec.ValidateSSHDir(sshDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := sshexec.NewRunner(cfg.SSHBinary, logging.Component("sshexec"))
	res, err := runner.Run(ctx, req)
	if err != nil && !errors.Is(err, sshexec.ErrTimeout) {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return fmt.Errorf("failed to write result: %w", encErr)
	}

	closer.Close()
	os.Exit(processExitCode(res.ExitCode))
	return nil
}

// processExitCode converts a result exit code to a process status;
// signal deaths (-N) become 128+N like a shell reports them.
func processExitCode(code int) int {
	if code < 0 {
		return 128 - code
	}
	return code
}

package mcp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kamikazebr/ssh-api/internal/sshexec"
)

// sshTool describes the ssh tool; its schema mirrors sshexec.Request.
func sshTool() Tool {
	return Tool{
		Name:        ToolName,
		Description: "Execute a non-interactive SSH command and return stdout/stderr/exit_code.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"host", "command"},
			"properties": map[string]any{
				"host":    map[string]any{"type": "string", "description": "SSH host or alias"},
				"command": map[string]any{"type": "string", "description": "Non-interactive command to run"},
				"user":    map[string]any{"type": "string"},
				"port":    map[string]any{"type": "integer"},
				"ssh_dir": map[string]any{"type": "string", "description": "Path to ~/.ssh (optional)"},
				"timeout": map[string]any{"type": "integer", "default": sshexec.DefaultTimeout},
				"strict_host_key_checking": map[string]any{
					"type": "string",
					"enum": sshexec.HostKeyModes,
				},
				"proxy_jump":   map[string]any{"type": "string", "description": "ProxyJump/-J host"},
				"allocate_tty": map[string]any{"type": "boolean"},
				"extra_opts": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Raw ssh(1) flags, each item is one token",
				},
			},
		},
	}
}

// formatResult renders a Result as the text block returned to MCP clients.
func formatResult(host string, res sshexec.Result) CallToolResult {
	var b strings.Builder
	fmt.Fprintf(&b, "SSH command completed on %s:\n", host)
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	fmt.Fprintf(&b, "Duration: %ss\n", formatSeconds(res.DurationSeconds))
	fmt.Fprintf(&b, "Stdout: %s\n", res.Stdout)
	fmt.Fprintf(&b, "Stderr: %s", res.Stderr)

	return CallToolResult{
		Content: []Content{{Type: "text", Text: b.String()}},
		IsError: res.ExitCode != 0,
	}
}

// formatSeconds always keeps a fractional part ("2.0", "0.125").
func formatSeconds(s float64) string {
	out := strconv.FormatFloat(s, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

// Package sshexec validates SSH execution parameters and runs a single
// non-interactive command through the system ssh client.
package sshexec

// Limits applied to untrusted request fields.
const (
	MaxCommandLength  = 8192
	MaxHostLength     = 253
	MaxUserLength     = 32
	MaxSSHDirLength   = 4096
	MaxExtraOptLength = 256
	MinTimeout        = 1
	MaxTimeout        = 3600
	DefaultTimeout    = 60
)

// Host key checking modes accepted for strict_host_key_checking.
var HostKeyModes = []string{"yes", "no", "accept-new"}

// Request is a validated SSH invocation.
type Request struct {
	Host                  string
	Command               string
	User                  string
	Port                  int
	SSHDir                string
	Timeout               int
	StrictHostKeyChecking string
	ProxyJump             string
	AllocateTTY           bool
	ExtraOpts             []string
}

// Target returns the connection target passed to ssh.
func (r Request) Target() string {
	if r.User != "" {
		return r.User + "@" + r.Host
	}
	return r.Host
}

// Result is the outcome of one invocation.
type Result struct {
	ExitCode        int     `json:"exit_code"`
	Stdout          string  `json:"stdout"`
	Stderr          string  `json:"stderr"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ParseRequest validates params and converts them into a Request.
// The returned error is a *ValidationError when params are rejected.
func ParseRequest(params map[string]any) (Request, error) {
	if err := ValidateParams(params); err != nil {
		return Request{}, err
	}

	req := Request{
		Host:    params["host"].(string),
		Command: params["command"].(string),
		Timeout: DefaultTimeout,
	}
	if v, ok := present(params, "user"); ok {
		req.User = v.(string)
	}
	if v, ok := present(params, "port"); ok {
		req.Port, _ = asInt(v)
	}
	if v, ok := params["timeout"]; ok {
		req.Timeout, _ = asInt(v)
	}
	if v, ok := present(params, "ssh_dir"); ok {
		req.SSHDir = v.(string)
	}
	if v, ok := present(params, "strict_host_key_checking"); ok {
		req.StrictHostKeyChecking = v.(string)
	}
	if v, ok := present(params, "proxy_jump"); ok {
		req.ProxyJump = v.(string)
	}
	if v, ok := present(params, "allocate_tty"); ok {
		req.AllocateTTY = v.(bool)
	}
	if v, ok := present(params, "extra_opts"); ok {
		items, _ := asSlice(v)
		req.ExtraOpts = make([]string, 0, len(items))
		for _, item := range items {
			req.ExtraOpts = append(req.ExtraOpts, item.(string))
		}
	}
	return req, nil
}

package models

// Error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// RunRequest documents the POST /run body. The handler decodes into an
// untyped map so field types can be validated with exact messages; this
// type exists for clients of the API.
type RunRequest struct {
	Host                  string   `json:"host"`
	Command               string   `json:"command"`
	User                  string   `json:"user,omitempty"`
	Port                  int      `json:"port,omitempty"`
	SSHDir                *string  `json:"ssh_dir,omitempty"`
	Timeout               int      `json:"timeout,omitempty"`
	StrictHostKeyChecking string   `json:"strict_host_key_checking,omitempty"`
	ProxyJump             string   `json:"proxy_jump,omitempty"`
	AllocateTTY           bool     `json:"allocate_tty,omitempty"`
	ExtraOpts             []string `json:"extra_opts,omitempty"`
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/internal/sshexec"
	"github.com/kamikazebr/ssh-api/pkg/models"
)

// Runner executes a validated SSH request.
type Runner interface {
	Run(ctx context.Context, req sshexec.Request) (sshexec.Result, error)
}

type RunHandler struct {
	runner        Runner
	defaultSSHDir string
}

// NewRunHandler creates the /run handler. defaultSSHDir is used when the
// request body has no ssh_dir key.
func NewRunHandler(runner Runner, defaultSSHDir string) *RunHandler {
	return &RunHandler{
		runner:        runner,
		defaultSSHDir: defaultSSHDir,
	}
}

// Run executes one SSH command
// POST /run
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		respondError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	params, status, msg := decodeParams(r.Body)
	if status != 0 {
		log.Warn().Int("status", status).Msg(msg)
		respondError(w, status, msg)
		return
	}

	req, err := sshexec.ParseRequest(params)
	if err != nil {
		log.Warn().Err(err).Msg("parameter validation failed")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sshDir := h.defaultSSHDir
	if v, ok := params["ssh_dir"]; ok {
		sshDir, _ = v.(string)
	}
	if req.SSHDir, err = sshexec.ValidateSSHDir(sshDir); err != nil {
		log.Warn().Err(err).Msg("ssh directory validation failed")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().
		Str("principal", Principal(r)).
		Str("host", req.Host).
		Str("command", logging.Truncate(logging.Redact(req.Command), 50)).
		Msg("ssh command execution")

	// Client disconnects do not cancel the command; only its timeout does.
	res, err := h.runner.Run(context.WithoutCancel(r.Context()), req)
	switch {
	case errors.Is(err, sshexec.ErrTimeout):
		log.Error().Str("host", req.Host).Float64("duration_seconds", res.DurationSeconds).Msg("ssh command timed out")
		respondError(w, http.StatusGatewayTimeout, "SSH command timed out")
		return
	case err != nil:
		var spawnErr *sshexec.SpawnError
		if errors.As(err, &spawnErr) {
			log.Error().Err(err).Str("host", req.Host).Msg("ssh process error")
			respondError(w, http.StatusInternalServerError, "SSH execution failed: "+err.Error())
			return
		}
		log.Error().Err(err).Msg("unexpected error during ssh execution")
		respondError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}

	if res.ExitCode == 0 {
		log.Info().Str("host", req.Host).Float64("duration_seconds", res.DurationSeconds).Msg("ssh command successful")
	} else {
		log.Warn().Str("host", req.Host).Int("exit_code", res.ExitCode).Msg("ssh command failed")
	}
	respondJSON(w, http.StatusOK, res)
}

// Healthz reports liveness
// GET /healthz
func Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{OK: true})
}

// decodeParams reads a JSON object body. A non-zero status means the body
// was rejected with msg.
func decodeParams(body io.Reader) (map[string]any, int, string) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return nil, http.StatusRequestEntityTooLarge, "Request too large"
		case errors.As(err, &typeErr):
			return nil, http.StatusBadRequest, "Invalid JSON in request body"
		default:
			return nil, http.StatusBadRequest, "Invalid JSON format"
		}
	}
	if _, err := dec.Token(); err != io.EOF {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, "Request too large"
		}
		return nil, http.StatusBadRequest, "Invalid JSON format"
	}
	if params == nil {
		return nil, http.StatusBadRequest, "Invalid JSON in request body"
	}
	return params, 0, ""
}

func isJSONContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kamikazebr/ssh-api/internal/logging"
	"github.com/kamikazebr/ssh-api/internal/sshexec"
)

// MaxLineBytes bounds a single request line.
const MaxLineBytes = 10 << 20

// Runner executes a validated SSH request.
type Runner interface {
	Run(ctx context.Context, req sshexec.Request) (sshexec.Result, error)
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, *Error)

// Server answers JSON-RPC requests one line at a time.
type Server struct {
	runner        Runner
	defaultSSHDir string
	version       string
	logger        zerolog.Logger
	handlers      map[string]handlerFunc
}

// NewServer creates a server. defaultSSHDir is used when a tools/call has no
// ssh_dir argument; it may be empty.
func NewServer(runner Runner, defaultSSHDir, version string, logger zerolog.Logger) *Server {
	s := &Server{
		runner:        runner,
		defaultSSHDir: defaultSSHDir,
		version:       version,
		logger:        logger,
	}
	s.handlers = map[string]handlerFunc{
		"initialize": s.initialize,
		"ping":       s.ping,
		"tools/list": s.toolsList,
		"tools/call": s.toolsCall,
	}
	return s
}

// Serve reads requests from in until EOF or ctx is done and writes one
// response line per non-blank request line to out. Cancelling ctx returns
// immediately even while in is idle; the reader goroutine then exits on the
// next read or when in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	lines, readErr := s.readLines(ctx, in)

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	s.logger.Info().Msg("mcp server ready")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := <-readErr; err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			s.logger.Info().Msg("stdin closed, mcp server stopping")
			return nil
		}

		resp, ok := s.HandleLine(ctx, line)
		if !ok {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// readLines scans in on its own goroutine. The scan error is delivered on
// the second channel before lines is closed, unless ctx ended the scan.
func (s *Server) readLines(ctx context.Context, in io.Reader) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}

// HandleLine processes one input line. ok is false for blank lines, which
// get no response.
func (s *Server) HandleLine(ctx context.Context, line []byte) (Response, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Response{}, false
	}

	if !json.Valid(line) {
		s.logger.Warn().Msg("received unparsable request")
		return Response{
			JSONRPC: JSONRPCVersion,
			Error:   &Error{Code: CodeParseError, Message: "Parse error: Invalid JSON"},
		}, true
	}

	return s.Handle(ctx, line), true
}

// Handle dispatches one syntactically valid JSON-RPC message.
func (s *Server) Handle(ctx context.Context, msg json.RawMessage) Response {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil || fields == nil {
		return failure(defaultID, newError(CodeInvalidRequest, "Invalid Request"))
	}

	id := requestID(fields["id"])

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != JSONRPCVersion {
		return failure(id, newError(CodeInvalidRequest, "Invalid Request"))
	}

	method := methodName(fields["method"])
	handler, ok := s.handlers[method]
	if !ok {
		s.logger.Warn().Str("method", method).Msg("unknown method")
		return failure(id, newError(CodeMethodNotFound, "Method not found: %s", method))
	}

	res, rpcErr := handler(ctx, fields["params"])
	if rpcErr != nil {
		return failure(id, rpcErr)
	}
	return result(id, res)
}

func (s *Server) initialize(ctx context.Context, _ json.RawMessage) (any, *Error) {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: ToolsCapability{ListChanged: false}},
		ServerInfo:      ServerInfo{Name: ServerName, Version: s.version},
	}, nil
}

func (s *Server) ping(ctx context.Context, _ json.RawMessage) (any, *Error) {
	return struct{}{}, nil
}

func (s *Server) toolsList(ctx context.Context, _ json.RawMessage) (any, *Error) {
	return ToolsListResult{Tools: []Tool{sshTool()}}, nil
}

func (s *Server) toolsCall(ctx context.Context, raw json.RawMessage) (any, *Error) {
	params, err := decodeObject(raw)
	if err != nil {
		return nil, newError(CodeInvalidParams, "Invalid params: params must be an object")
	}

	name, _ := params["name"].(string)
	if name != ToolName {
		return nil, newError(CodeInvalidParams, "Unknown tool: %s", name)
	}

	args, ok := toolArguments(params["arguments"])
	if !ok {
		return nil, newError(CodeInvalidParams, "Invalid params: arguments must be an object")
	}

	return s.callSSH(ctx, args)
}

func (s *Server) callSSH(ctx context.Context, args map[string]any) (any, *Error) {
	log := s.logger.With().Str("call_id", uuid.NewString()).Logger()

	req, err := sshexec.ParseRequest(args)
	if err != nil {
		log.Warn().Err(err).Msg("parameter validation failed")
		return nil, newError(CodeSSHValidation, "Invalid parameters: %s", err)
	}

	sshDir := s.defaultSSHDir
	if v, ok := args["ssh_dir"].(string); ok && v != "" {
		sshDir = v
	}
	if req.SSHDir, err = sshexec.ValidateSSHDir(sshDir); err != nil {
		log.Warn().Err(err).Msg("ssh directory validation failed")
		return nil, newError(CodeSSHDirectory, "SSH directory error: %s", err)
	}

	log.Info().
		Str("host", req.Host).
		Str("command", logging.Truncate(logging.Redact(req.Command), 50)).
		Msg("executing ssh command")

	res, err := s.runner.Run(ctx, req)
	switch {
	case errors.Is(err, sshexec.ErrTimeout):
		log.Error().Str("host", req.Host).Msg("ssh command timed out")
		return nil, &Error{
			Code:    CodeSSHTimeout,
			Message: "SSH command timed out",
			Data: map[string]any{
				"exit_code":        res.ExitCode,
				"duration_seconds": res.DurationSeconds,
			},
		}
	case err != nil:
		var spawnErr *sshexec.SpawnError
		if errors.As(err, &spawnErr) {
			log.Error().Err(err).Str("host", req.Host).Msg("ssh process error")
			return nil, newError(CodeSSHConnection, "SSH command failed: %s", err)
		}
		log.Error().Err(err).Msg("unexpected error during ssh execution")
		return nil, newError(CodeInternalError, "Internal server error: %s", err)
	}

	log.Info().
		Str("host", req.Host).
		Int("exit_code", res.ExitCode).
		Float64("duration_seconds", res.DurationSeconds).
		Msg("ssh command completed")
	return formatResult(req.Host, res), nil
}

// requestID returns the id to echo, substituting 0 for a missing or null id.
func requestID(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultID
	}
	return raw
}

// methodName renders the method for dispatch and error messages. Non-string
// methods are kept in their JSON form so they never match a handler.
func methodName(raw json.RawMessage) string {
	var method string
	if err := json.Unmarshal(raw, &method); err == nil {
		return method
	}
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

// decodeObject decodes a JSON object keeping numbers as json.Number. A
// missing or null value yields an empty object.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}

// toolArguments treats missing or empty-ish arguments as no arguments.
func toolArguments(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return t, true
	case bool:
		return map[string]any{}, !t
	case string:
		return map[string]any{}, t == ""
	case []any:
		return map[string]any{}, len(t) == 0
	}
	return nil, false
}

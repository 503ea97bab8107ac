package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamikazebr/ssh-api/internal/sshexec"
)

type fakeRunner struct {
	result sshexec.Result
	err    error
	calls  []sshexec.Request
}

func (f *fakeRunner) Run(ctx context.Context, req sshexec.Request) (sshexec.Result, error) {
	f.calls = append(f.calls, req)
	return f.result, f.err
}

func newTestServer(runner Runner, sshDir string) *Server {
	return NewServer(runner, sshDir, "test", zerolog.Nop())
}

// roundTrip runs a single line through the server and decodes the response.
func roundTrip(t *testing.T, s *Server, line string) map[string]any {
	t.Helper()

	resp, ok := s.HandleLine(context.Background(), []byte(line))
	require.True(t, ok)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func errorOf(t *testing.T, resp map[string]any) (int, string) {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected error response, got %v", resp)
	return int(e["code"].(float64)), e["message"].(string)
}

func toolCall(args string) string {
	return `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ssh","arguments":` + args + `}}`
}

func TestServe_LineProtocol(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`   `,
		`{not json`,
		`{"jsonrpc":"2.0","id":"abc","method":"ping"}`,
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, lines[0])
	assert.Equal(t, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error: Invalid JSON"}}`, lines[1])
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","result":{}}`, lines[2])
}

func TestServe_StopsOnCancelledContext(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestServe_ReturnsOnCancelWhileInputIdle(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, inR, outW)
	}()

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	require.NoError(t, err)

	resp, err := bufio.NewReader(outR).ReadString('\n')
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, resp)

	// Input stays open and silent from here on.
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel while input was idle")
	}
}

func TestHandleLine_BlankLine(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")
	_, ok := s.HandleLine(context.Background(), []byte("  \t"))
	assert.False(t, ok)
}

func TestHandle_InvalidRequest(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	tests := []struct {
		name   string
		line   string
		wantID any
	}{
		{"array", `[1,2]`, float64(0)},
		{"string", `"hello"`, float64(0)},
		{"null", `null`, float64(0)},
		{"wrong version", `{"jsonrpc":"1.0","id":5,"method":"ping"}`, float64(5)},
		{"missing version", `{"id":"x","method":"ping"}`, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, s, tt.line)
			code, msg := errorOf(t, resp)
			assert.Equal(t, CodeInvalidRequest, code)
			assert.Equal(t, "Invalid Request", msg)
			assert.Equal(t, tt.wantID, resp["id"])
		})
	}
}

func TestHandle_IDDefaults(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	resp := roundTrip(t, s, `{"jsonrpc":"2.0","method":"ping"}`)
	assert.Equal(t, float64(0), resp["id"])

	resp = roundTrip(t, s, `{"jsonrpc":"2.0","id":null,"method":"ping"}`)
	assert.Equal(t, float64(0), resp["id"])

	resp = roundTrip(t, s, `{"jsonrpc":"2.0","id":"req-1","method":"ping"}`)
	assert.Equal(t, "req-1", resp["id"])
}

func TestHandle_MethodNotFound(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	resp := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	code, msg := errorOf(t, resp)
	assert.Equal(t, CodeMethodNotFound, code)
	assert.Equal(t, "Method not found: resources/list", msg)
}

func TestHandle_Initialize(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	resp := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	res := resp["result"].(map[string]any)

	assert.Equal(t, ProtocolVersion, res["protocolVersion"])
	assert.Equal(t, map[string]any{"tools": map[string]any{"listChanged": false}}, res["capabilities"])
	assert.Equal(t, map[string]any{"name": ServerName, "version": "test"}, res["serverInfo"])
}

func TestHandle_ToolsList(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	resp := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	tools := resp["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)

	tool := tools[0].(map[string]any)
	assert.Equal(t, "ssh", tool["name"])

	schema := tool["inputSchema"].(map[string]any)
	assert.Equal(t, []any{"host", "command"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 10)
	assert.Equal(t, float64(60), props["timeout"].(map[string]any)["default"])
	assert.Equal(t, []any{"yes", "no", "accept-new"}, props["strict_host_key_checking"].(map[string]any)["enum"])
	assert.Equal(t, "array", props["extra_opts"].(map[string]any)["type"])
}

func TestToolsCall_Success(t *testing.T) {
	runner := &fakeRunner{result: sshexec.Result{ExitCode: 0, Stdout: "hi\n", Stderr: "", DurationSeconds: 1}}
	s := newTestServer(runner, "")

	resp := roundTrip(t, s, toolCall(`{"host":"example.com","command":"echo hi","port":2222,"extra_opts":["-v"]}`))
	require.Nil(t, resp["error"])
	assert.Equal(t, float64(7), resp["id"])

	res := resp["result"].(map[string]any)
	assert.Equal(t, false, res["isError"])
	content := res["content"].([]any)
	require.Len(t, content, 1)
	block := content[0].(map[string]any)
	assert.Equal(t, "text", block["type"])
	assert.Equal(t, "SSH command completed on example.com:\nExit code: 0\nDuration: 1.0s\nStdout: hi\n\nStderr: ", block["text"])

	require.Len(t, runner.calls, 1)
	req := runner.calls[0]
	assert.Equal(t, 2222, req.Port)
	assert.Equal(t, []string{"-v"}, req.ExtraOpts)
	assert.Equal(t, sshexec.DefaultTimeout, req.Timeout)
	assert.Empty(t, req.SSHDir)
}

func TestToolsCall_NonZeroExitIsError(t *testing.T) {
	runner := &fakeRunner{result: sshexec.Result{ExitCode: 2, Stderr: "boom", DurationSeconds: 0.25}}
	s := newTestServer(runner, "")

	resp := roundTrip(t, s, toolCall(`{"host":"h","command":"false"}`))
	res := resp["result"].(map[string]any)
	assert.Equal(t, true, res["isError"])
	text := res["content"].([]any)[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "Exit code: 2\nDuration: 0.25s\n")
	assert.True(t, strings.HasSuffix(text, "Stderr: boom"))
}

func TestToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(&fakeRunner{}, "")

	tests := []struct {
		name string
		line string
		code int
		msg  string
	}{
		{
			name: "unknown tool",
			line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"scp"}}`,
			code: CodeInvalidParams,
			msg:  "Unknown tool: scp",
		},
		{
			name: "params not object",
			line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1]}`,
			code: CodeInvalidParams,
			msg:  "Invalid params: params must be an object",
		},
		{
			name: "arguments not object",
			line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ssh","arguments":[1]}}`,
			code: CodeInvalidParams,
			msg:  "Invalid params: arguments must be an object",
		},
		{
			name: "missing arguments",
			line: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ssh"}}`,
			code: CodeSSHValidation,
			msg:  "Invalid parameters: Missing required parameter: host",
		},
		{
			name: "bad port",
			line: toolCall(`{"host":"h","command":"c","port":0}`),
			code: CodeSSHValidation,
			msg:  "Invalid parameters: Port must be an integer between 1 and 65535",
		},
		{
			name: "fractional timeout",
			line: toolCall(`{"host":"h","command":"c","timeout":1.5}`),
			code: CodeSSHValidation,
			msg:  "Invalid parameters: Timeout must be an integer between 1 and 3600 seconds",
		},
		{
			name: "dir not allowed",
			line: toolCall(`{"host":"h","command":"c","ssh_dir":"/etc/ssh"}`),
			code: CodeSSHDirectory,
			msg:  "SSH directory error: SSH directory path not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, s, tt.line)
			code, msg := errorOf(t, resp)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestToolsCall_SSHDirFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")

	configured := filepath.Join(home, "keys")
	override := filepath.Join(home, ".ssh")
	require.NoError(t, os.Mkdir(configured, 0o700))
	require.NoError(t, os.Mkdir(override, 0o700))

	runner := &fakeRunner{}
	s := newTestServer(runner, configured)

	roundTrip(t, s, toolCall(`{"host":"h","command":"c"}`))
	roundTrip(t, s, toolCall(`{"host":"h","command":"c","ssh_dir":""}`))
	roundTrip(t, s, toolCall(`{"host":"h","command":"c","ssh_dir":"~/.ssh"}`))

	require.Len(t, runner.calls, 3)
	assert.Equal(t, configured, runner.calls[0].SSHDir)
	assert.Equal(t, configured, runner.calls[1].SSHDir)
	assert.Equal(t, override, runner.calls[2].SSHDir)
}

func TestToolsCall_RunnerErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		runner := &fakeRunner{
			result: sshexec.Result{ExitCode: sshexec.TimeoutExitCode, Stderr: "timeout", DurationSeconds: 3.5},
			err:    sshexec.ErrTimeout,
		}
		resp := roundTrip(t, newTestServer(runner, ""), toolCall(`{"host":"h","command":"sleep 10","timeout":3}`))

		code, msg := errorOf(t, resp)
		assert.Equal(t, CodeSSHTimeout, code)
		assert.Equal(t, "SSH command timed out", msg)
		data := resp["error"].(map[string]any)["data"].(map[string]any)
		assert.Equal(t, float64(124), data["exit_code"])
		assert.Equal(t, 3.5, data["duration_seconds"])
	})

	t.Run("spawn failure", func(t *testing.T) {
		runner := &fakeRunner{err: &sshexec.SpawnError{Binary: "ssh", Err: errors.New("not found")}}
		resp := roundTrip(t, newTestServer(runner, ""), toolCall(`{"host":"h","command":"c"}`))

		code, msg := errorOf(t, resp)
		assert.Equal(t, CodeSSHConnection, code)
		assert.True(t, strings.HasPrefix(msg, "SSH command failed: "), msg)
		assert.Contains(t, msg, "not found")
	})

	t.Run("other", func(t *testing.T) {
		runner := &fakeRunner{err: errors.New("pipe closed")}
		resp := roundTrip(t, newTestServer(runner, ""), toolCall(`{"host":"h","command":"c"}`))

		code, msg := errorOf(t, resp)
		assert.Equal(t, CodeInternalError, code)
		assert.Equal(t, "Internal server error: pipe closed", msg)
	})
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.0", formatSeconds(1))
	assert.Equal(t, "0.0", formatSeconds(0))
	assert.Equal(t, "0.125", formatSeconds(0.125))
	assert.Equal(t, "12.5", formatSeconds(12.5))
}

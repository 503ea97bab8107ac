// Package mcp implements a line-delimited JSON-RPC 2.0 stdio server exposing
// the "ssh" tool to MCP clients.
package mcp

import (
	"encoding/json"
	"fmt"
)

const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2024-11-05"
	ServerName      = "ssh-api-mcp"
	ToolName        = "ssh"
)

// JSON-RPC reserved error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error codes for SSH failures, outside the reserved range.
const (
	CodeSSHConnection = -32001
	CodeSSHTimeout    = -32002
	CodeSSHValidation = -32003
	CodeSSHDirectory  = -32004
)

// defaultID replaces a missing or null request id.
var defaultID = json.RawMessage("0")

// Response is a JSON-RPC response object. ID is omitted only for parse errors.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func newError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func result(id json.RawMessage, res any) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Result: res}
}

func failure(id json.RawMessage, err *Error) Response {
	return Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

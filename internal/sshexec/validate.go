package sshexec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"unicode/utf8"
)

// ValidationError reports the first parameter constraint that failed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidateParams checks untyped request parameters and returns the first
// violation found. The check order is part of the contract: callers match
// on the exact message.
func ValidateParams(params map[string]any) error {
	if !truthy(params["host"]) {
		return invalid("Missing required parameter: host")
	}
	if !truthy(params["command"]) {
		return invalid("Missing required parameter: command")
	}

	host, ok := params["host"].(string)
	if !ok || strings.TrimSpace(host) == "" {
		return invalid("Host must be a non-empty string")
	}
	if utf8.RuneCountInString(host) > MaxHostLength {
		return invalid("Host length exceeds maximum of %d characters", MaxHostLength)
	}

	command, ok := params["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return invalid("Command must be a non-empty string")
	}
	if utf8.RuneCountInString(command) > MaxCommandLength {
		return invalid("Command length exceeds maximum of %d characters", MaxCommandLength)
	}

	if v, ok := present(params, "user"); ok {
		if !boundedString(v, MaxUserLength) {
			return invalid("User must be a string with maximum %d characters", MaxUserLength)
		}
	}

	if v, ok := present(params, "port"); ok {
		port, isInt := asInt(v)
		if !isInt || port < 1 || port > 65535 {
			return invalid("Port must be an integer between 1 and 65535")
		}
	}

	// An explicit null timeout is rejected; only a missing key gets the default.
	if v, ok := params["timeout"]; ok {
		timeout, isInt := asInt(v)
		if !isInt || timeout < MinTimeout || timeout > MaxTimeout {
			return invalid("Timeout must be an integer between %d and %d seconds", MinTimeout, MaxTimeout)
		}
	}

	if v, ok := present(params, "ssh_dir"); ok {
		if !boundedString(v, MaxSSHDirLength) {
			return invalid("SSH directory path must be a string with maximum %d characters", MaxSSHDirLength)
		}
	}

	if v, ok := present(params, "strict_host_key_checking"); ok {
		mode, isStr := v.(string)
		if !isStr || !slices.Contains(HostKeyModes, mode) {
			return invalid("strict_host_key_checking must be one of: %s", strings.Join(HostKeyModes, ", "))
		}
	}

	if v, ok := present(params, "proxy_jump"); ok {
		if !boundedString(v, MaxHostLength) {
			return invalid("Proxy jump must be a string with maximum %d characters", MaxHostLength)
		}
	}

	if v, ok := present(params, "allocate_tty"); ok {
		if _, isBool := v.(bool); !isBool {
			return invalid("allocate_tty must be a boolean")
		}
	}

	if v, ok := present(params, "extra_opts"); ok {
		items, isSlice := asSlice(v)
		if !isSlice {
			return invalid("extra_opts must be an array")
		}
		for _, item := range items {
			if !boundedString(item, MaxExtraOptLength) {
				return invalid("Each extra_opts item must be a string with maximum %d characters", MaxExtraOptLength)
			}
		}
	}

	return nil
}

// present reports whether key exists with a non-null value.
func present(params map[string]any, key string) (any, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func boundedString(v any, max int) bool {
	s, ok := v.(string)
	return ok && utf8.RuneCountInString(s) <= max
}

// truthy treats nil, false, zero numbers and empty strings or collections
// as missing.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

// asInt accepts integral numbers only. Booleans and fractional values are
// rejected.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		if t > math.MaxInt32 || t < math.MinInt32 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt32 || t < math.MinInt32 {
			return 0, false
		}
		return int(t), true
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	orig, origLevel := Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})
}

func TestInit_JSONLevelFilter(t *testing.T) {
	resetGlobal(t)

	var buf bytes.Buffer
	closer, err := Init(Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)
	defer closer.Close()

	l := Component("sshexec")
	l.Info().Msg("dropped")
	l.Warn().Str("host", "h").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "sshexec", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}

func TestInit_FileMirror(t *testing.T) {
	resetGlobal(t)

	path := filepath.Join(t.TempDir(), "logs", "ssh-api.log")
	var buf bytes.Buffer
	closer, err := Init(Config{Level: "info", Format: "json", Output: &buf, File: path})
	require.NoError(t, err)

	Logger.Info().Msg("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestInit_RotatesLargeFile(t *testing.T) {
	resetGlobal(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "ssh-api.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), MaxLogSize), 0644))

	closer, err := Init(Config{Level: "info", Format: "json", Output: &bytes.Buffer{}, File: path})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(MaxLogSize))
}

func TestFromContext(t *testing.T) {
	resetGlobal(t)

	var buf bytes.Buffer
	scoped := zerolog.New(&buf).With().Str("request_id", "abc").Logger()
	ctx := WithContext(context.Background(), scoped)

	log := FromContext(ctx)
	log.Info().Msg("scoped")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)

	buf.Reset()
	Logger = zerolog.New(&buf)
	fallback := FromContext(context.Background())
	fallback.Info().Msg("global")
	assert.Contains(t, buf.String(), "global")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

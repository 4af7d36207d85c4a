package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONToStdoutAndFile(t *testing.T) {
	var stdout bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, closer, err := newWithStdout(Config{
		Level:      "debug",
		Format:     "json",
		OutputFile: path,
		MaxSizeMB:  1,
	}, &stdout)
	require.NoError(t, err)

	logger.WithField("market", "DOGE_USD").Info("market created")
	require.NoError(t, closer.Close())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &line))
	assert.Equal(t, "DOGE_USD", line["market"])
	assert.Equal(t, "market created", line["msg"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DOGE_USD")
}

func TestNew_LevelFilters(t *testing.T) {
	var stdout bytes.Buffer
	logger, _, err := newWithStdout(Config{Level: "warn"}, &stdout)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "shown")
}

func TestNew_Rejects(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

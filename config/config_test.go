package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, uint16(0), c.Index)
	assert.Equal(t, "/run/bthal/control.sock", c.Socket)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, 5*time.Second, c.InitTimeout)
	assert.Equal(t, 3*time.Second, c.CommandTimeout)
	assert.Equal(t, 30*time.Second, c.OpenRetry)
	assert.Empty(t, c.MetricsAddr)
	assert.False(t, c.PowerOn)
	assert.NoError(t, c.Validate())
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "bthal.yaml", `
index: 1
socket: /tmp/bthal.sock
init_timeout: 2s
metrics_addr: ":9110"
power_on: true
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), c.Index)
	assert.Equal(t, "/tmp/bthal.sock", c.Socket)
	assert.Equal(t, 2*time.Second, c.InitTimeout)
	assert.Equal(t, ":9110", c.MetricsAddr)
	assert.True(t, c.PowerOn)

	// unset keys keep their defaults
	assert.Equal(t, 3*time.Second, c.CommandTimeout)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "bthal.json", `{
		"log_level": "debug",
		"command_timeout": "750ms",
		"open_retry": 1000000000
	}`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 750*time.Millisecond, c.CommandTimeout)
	assert.Equal(t, time.Second, c.OpenRetry)
	assert.Equal(t, 5*time.Second, c.InitTimeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bthal.toml", "index = 1"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bthal.json", `{"command_timeout": "soon"}`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bthal.yml", "init_timeout: -1s\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bthal.yaml", "index: [1\n"))
	assert.Error(t, err)
}

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runit.yaml")
	yaml := `
host: 0.0.0.0
port: 8080
timeout: 5s
queue_timeout: 250ms
isolation: container
image: demo
mounts: [/opt/shared]
watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.QueueTimeout)
	assert.Equal(t, IsolationContainer, cfg.Isolation)
	assert.Equal(t, []string{"/opt/shared"}, cfg.Mounts)
	assert.True(t, cfg.Watch)

	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Grace)
	assert.Equal(t, "none", cfg.Network)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("isolation: vm\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "invalid isolation")

	require.NoError(t, os.WriteFile(path, []byte("port: [1\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestContainerIsolationNeedsImage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Isolation = IsolationContainer

	_, err := New(cfg, nil)
	assert.Error(t, err)

	writeProject(t, cfg.Dir)
	s, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "container", s.backend.Name())
}

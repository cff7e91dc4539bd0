package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "service:\n  name: kolibrid\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kolibrid", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Service.PollTimeout)
	assert.Equal(t, filepath.Join(dir, "home"), cfg.Home)
	assert.Equal(t, filepath.Join(dir, "home", "state.db"), cfg.State.Path)
	assert.Equal(t, "127.0.0.1:5678", cfg.API.Listen)
	assert.Equal(t, 0, cfg.HTTP.Port)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "home: "+dir+"\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Home)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("KOLIBRID_TEST_KEY", "sekrit")

	dir := t.TempDir()
	path := writeConfig(t, dir, `
api:
  enabled: true
  auth:
    api_key: ${KOLIBRID_TEST_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", cfg.API.Auth.APIKey)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "port out of range",
			content: "http:\n  port: 70000\n",
			wantErr: "http.port out of range",
		},
		{
			name:    "equal ports",
			content: "http:\n  port: 8080\n  zip_port: 8080\n",
			wantErr: "must differ",
		},
		{
			name:    "relative home",
			content: "home: relative/home\n",
			wantErr: "absolute path",
		},
		{
			name:    "tiny poll timeout",
			content: "service:\n  poll_timeout: 1ms\n",
			wantErr: "poll_timeout too small",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPIDLockPath(t *testing.T) {
	cfg := &Config{State: StateConfig{Path: "/var/lib/kolibrid/state.db"}}
	assert.Equal(t, "/var/lib/kolibrid/kolibrid.pid", cfg.PIDLockPath())
}

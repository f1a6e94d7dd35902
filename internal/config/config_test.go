package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	v := NewViper()
	v.Set(KeyDataDir, dir)

	c, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, c.Mode)
	assert.Equal(t, 8787, c.Port)
	assert.Equal(t, filepath.Join(dir, "bookmarks.db"), c.DBPath)
	assert.Equal(t, "http://localhost:8787", c.ServerURL)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
	assert.Equal(t, 5*time.Second, c.FetchTimeout)
	assert.Equal(t, 3*time.Second, c.NoticeTTL)
	assert.Zero(t, c.RefreshInterval)
	assert.False(t, c.AllowDevLogin)
	assert.Equal(t, filepath.Join(dir, "session.json"), c.SessionPath())
	assert.Equal(t, filepath.Join(dir, "bookmarks.pid"), c.PIDPath())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("BOOKMARKS_DATA_DIR", t.TempDir())
	t.Setenv("BOOKMARKS_MODE", "REMOTE")
	t.Setenv("BOOKMARKS_SERVER_URL", "http://example.com:9000/")
	t.Setenv("BOOKMARKS_REFRESH_INTERVAL", "30s")
	t.Setenv("BOOKMARKS_ALLOW_DEV_LOGIN", "true")

	c, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, ModeRemote, c.Mode)
	assert.Equal(t, "http://example.com:9000", c.ServerURL)
	assert.Equal(t, 30*time.Second, c.RefreshInterval)
	assert.True(t, c.AllowDevLogin)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"port: 9100\nemail: alice@example.com\nnotice_ttl: 5s\n"), 0644))

	v := NewViper()
	v.Set(KeyDataDir, dir)
	c, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Port)
	assert.Equal(t, "alice@example.com", c.Email)
	assert.Equal(t, 5*time.Second, c.NoticeTTL)
	assert.Equal(t, "http://localhost:9100", c.ServerURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	v := NewViper()
	v.Set(KeyDataDir, t.TempDir())
	v.Set(KeyMode, "offline")
	_, err := Load(v, "")
	assert.Error(t, err)

	v = NewViper()
	v.Set(KeyDataDir, t.TempDir())
	v.Set(KeyPort, 0)
	_, err = Load(v, "")
	assert.Error(t, err)
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8000", c.HTTPAddr)
	assert.Equal(t, "http://localhost:8000", c.BaseURL)
	assert.Equal(t, StateStoreMemory, c.StateStore)
	assert.Equal(t, 10*time.Minute, c.LoginStateTTL)
	assert.Empty(t, c.EncryptionKey)
	assert.Empty(t, c.SecretKey)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"http_addr":       ":7000",
		"secret_key":      "from-json",
		"drive_folder_id": "json-folder",
		"refresh_timeout": "3s",
	})

	cfg, err := load(
		[]string{"-c", path, "-s", "from-flag", "-unknown", "x"},
		env(map[string]string{
			"PORT":           "9000",
			"ENCRYPTION_KEY": "from-env",
			"JWT_SECRET_KEY": "from-env",
			"MCP_AUTH_TOKEN": "static",
		}),
	)
	require.NoError(t, err)

	want := &Config{}
	want.LoadDefaults()
	want.HTTPAddr = ":9000"
	want.SecretKey = "from-flag"
	want.EncryptionKey = "from-env"
	want.StaticToken = "static"
	want.DriveFolderID = "json-folder"
	want.RefreshTimeout = 3 * time.Second

	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_InvalidJSON(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

	_, err := load([]string{"-config", bad}, env(nil))
	require.ErrorContains(t, err, "json config")
}

func TestLoad_MissingJSONFile(t *testing.T) {
	_, err := load([]string{"-c", "/nonexistent/cfg.json"}, env(nil))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		c.EncryptionKey = "k"
		c.SecretKey = "s"
		return c
	}

	t.Run("ok", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("missing encryption key is fatal", func(t *testing.T) {
		c := valid()
		c.EncryptionKey = ""
		require.ErrorIs(t, c.Validate(), common.ErrEncryptionUnavailable)
	})

	t.Run("missing signing key is fatal", func(t *testing.T) {
		c := valid()
		c.SecretKey = ""
		require.ErrorIs(t, c.Validate(), common.ErrSigningKeyUnavailable)
	})

	t.Run("redis store needs url", func(t *testing.T) {
		c := valid()
		c.StateStore = StateStoreRedis
		require.Error(t, c.Validate())
		c.RedisURL = "redis://localhost:6379/0"
		require.NoError(t, c.Validate())
	})

	t.Run("unknown state store", func(t *testing.T) {
		c := valid()
		c.StateStore = "etcd"
		require.ErrorContains(t, c.Validate(), "etcd")
	})
}

func TestLoginEnabled(t *testing.T) {
	c := &Config{GoogleClientID: "id"}
	assert.False(t, c.LoginEnabled())
	c.GoogleClientSecret = "secret"
	assert.True(t, c.LoginEnabled())
}

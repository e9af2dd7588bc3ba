package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMCPDefaults(t *testing.T) {
	t.Setenv("CONSUMER_KEY", "ck_x")
	t.Setenv("CONSUMER_SECRET", "cs_y")

	conf, err := Load[MCP](filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8001, conf.Port)
	assert.Equal(t, ":8001", conf.Addr())
	assert.Equal(t, "ck_x", conf.ConsumerKey)
	assert.Equal(t, "https://museperfume.vn/wp-json/wc/v3", conf.APIBase())
	assert.Equal(t, 15*time.Second, conf.HTTPTimeout)
	assert.Equal(t, "VN", conf.Country)
	assert.Empty(t, conf.TavilyAPIKey)
}

func TestLoadMCPPrefixAndEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "muse.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CONSUMER_KEY=ck_file\nCONSUMER_SECRET=cs_file\nPORT=9100\n"), 0o600))
	t.Setenv("MUSE_API_BASE_URL", "https://staging.example/wp-json/wc/v3/")
	t.Setenv("MUSE_LOG_DEBUG", "true")
	t.Cleanup(func() {
		_ = os.Unsetenv("CONSUMER_KEY")
		_ = os.Unsetenv("CONSUMER_SECRET")
		_ = os.Unsetenv("PORT")
	})

	conf, err := Load[MCP](envFile)
	require.NoError(t, err)

	assert.Equal(t, "ck_file", conf.ConsumerKey)
	assert.Equal(t, 9100, conf.Port)
	assert.Equal(t, "https://staging.example/wp-json/wc/v3", conf.APIBase())
	assert.True(t, conf.Log.Debug)
}

func TestLoadMCPMissingCredentials(t *testing.T) {
	t.Setenv("CONSUMER_KEY", "")
	t.Setenv("CONSUMER_SECRET", "")
	require.NoError(t, os.Unsetenv("CONSUMER_KEY"))
	require.NoError(t, os.Unsetenv("CONSUMER_SECRET"))

	_, err := Load[MCP](filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}

func TestMCPValidate(t *testing.T) {
	t.Parallel()

	bad := MCP{Port: 8001, ConsumerKey: "k", ConsumerSecret: "s", StoreURL: "not a url"}
	assert.Error(t, bad.Validate())

	bad = MCP{Port: 0, ConsumerKey: "k", ConsumerSecret: "s", StoreURL: "https://museperfume.vn"}
	assert.Error(t, bad.Validate())

	bad = MCP{Port: 8001, StoreURL: "https://museperfume.vn"}
	assert.Error(t, bad.Validate())

	good := MCP{Port: 8001, ConsumerKey: "k", ConsumerSecret: "s", StoreURL: "https://museperfume.vn"}
	assert.NoError(t, good.Validate())
}

func TestLoadChat(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "http://tools:8001")

	conf, err := Load[Chat](filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8090", conf.Addr)
	assert.Equal(t, "http://tools:8001", conf.MCPServerURL)
	assert.Equal(t, 10, conf.HistorySize)
	assert.Equal(t, "gpt-4o", conf.Model)
}

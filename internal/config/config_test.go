package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Gateway.IdleTimeout)
	assert.Equal(t, 180*time.Second, cfg.Gateway.TotalTimeout)
	assert.Equal(t, 2, cfg.Gateway.Concurrency)
	assert.Equal(t, 8000, cfg.Gateway.MaxDocumentChars)
	assert.Equal(t, "./personas", cfg.Personas.Dir)
	assert.True(t, cfg.Personas.Watch)
	assert.Equal(t, "CF-Access-Authenticated-User-Email", cfg.Identity.EmailHeader)
	assert.False(t, cfg.Identity.Debug)
	assert.False(t, cfg.Gateway.Enabled())
}

func TestLoadPortForms(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "not a port")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadDurationsAcceptBareSeconds(t *testing.T) {
	t.Setenv("STREAM_IDLE_TIMEOUT", "45")
	t.Setenv("STREAM_TOTAL_TIMEOUT", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Gateway.IdleTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.TotalTimeout)

	t.Setenv("STREAM_IDLE_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadConcurrencyFloor(t *testing.T) {
	t.Setenv("ANALYSIS_CONCURRENCY", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Gateway.Concurrency)

	t.Setenv("ANALYSIS_CONCURRENCY", "four")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadGatewayEnabled(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "http://gateway.local")
	t.Setenv("DEFAULT_PROVIDER", "anthropic")
	t.Setenv("DEFAULT_MODEL", "claude-sonnet-4")
	t.Setenv("GATEWAY_PROVIDERS", "Anthropic, openai ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Gateway.Enabled())
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.Gateway.Providers)
}

func TestLoadAdminUsers(t *testing.T) {
	t.Setenv("ADMIN_USERS", "Admin@Example.com, ops@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Identity.IsAdmin("admin@example.com"))
	assert.True(t, cfg.Identity.IsAdmin("ops@example.com"))
	assert.False(t, cfg.Identity.IsAdmin("user@example.com"))
}

func TestLoadStorageDerivesSQLitePath(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/roundtable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/roundtable/roundtable.db", cfg.Storage.SQLitePath)

	t.Setenv("SQLITE_PATH", "/tmp/other.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.SQLitePath)
}

func TestLoadInvalidBool(t *testing.T) {
	t.Setenv("DEBUG", "maybe")
	_, err := Load()
	assert.Error(t, err)
}

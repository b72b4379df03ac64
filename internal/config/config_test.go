package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setGLPI(t *testing.T) {
	t.Helper()
	t.Setenv("BRIDGE_ENV", "test")
	t.Setenv("GLPI_API_URL", "https://glpi.example/apirest.php")
	t.Setenv("GLPI_USER_TOKEN", "user")
	t.Setenv("GLPI_APP_TOKEN", "app")
}

func TestLoadDefaults(t *testing.T) {
	setGLPI(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, 3306, cfg.DB.Port)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 3, cfg.GLPI.Urgency)
	assert.Equal(t, "+57", cfg.Retell.DefaultCC)
	assert.Equal(t, 60*time.Second, cfg.Diagnostics.TraceTimeout)
	assert.True(t, cfg.Pipeline.Idempotent)
	assert.False(t, cfg.Retell.Enabled())
	assert.False(t, cfg.HTTP.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadFromEnvironment(t *testing.T) {
	setGLPI(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("POLL_SECONDS", "30")
	t.Setenv("RETELL_API_KEY", "key_abc")
	t.Setenv("RETELL_DEFAULT_CC", "+1")
	t.Setenv("DIAGNOSTICS_PING_TIMEOUT", "7s")
	t.Setenv("PIPELINE_IDEMPOTENT", "false")
	t.Setenv("ONCALL_TIMEZONE", "America/Bogota")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.True(t, cfg.Retell.Enabled())
	assert.Equal(t, "+1", cfg.Retell.DefaultCC)
	assert.Equal(t, 7*time.Second, cfg.Diagnostics.PingTimeout)
	assert.False(t, cfg.Pipeline.Idempotent)
	assert.Equal(t, "America/Bogota", cfg.OnCall.Location().String())
}

func TestLoadRequiresGLPI(t *testing.T) {
	t.Setenv("BRIDGE_ENV", "test")
	t.Setenv("GLPI_API_URL", "https://glpi.example/apirest.php")

	_, err := Load()
	assert.ErrorIs(t, err, ErrIncompleteGLPI)

	// Read skips validation for database-only commands.
	_, err = Read()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{PollSeconds: 10, GLPI: GLPIConfig{APIURL: "u", UserToken: "t", AppToken: "a"}}
	require.NoError(t, base.Validate())

	c := base
	c.PollSeconds = 0
	assert.Error(t, c.Validate())

	c = base
	c.HTTP.Addr = ":8080"
	assert.Error(t, c.Validate())
	c.HTTP.JWTSecret = "s"
	assert.NoError(t, c.Validate())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, OnCallConfig{}.Location())
	assert.Equal(t, time.UTC, OnCallConfig{Timezone: "Mars/Olympus"}.Location())
}

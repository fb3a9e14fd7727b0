package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultPGPort, cfg.Postgres.Port)
	assert.Equal(t, DefaultTelegramMode, cfg.Telegram.Mode)
	assert.False(t, cfg.Telegram.WebhookMode())
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, DefaultThreadIdleDays, cfg.Retention.ThreadIdleDays)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[server]
addr = ":9090"
allowed_origins = ["https://support.example.com"]

[auth]
jwt_secret = "test-secret"

[postgres]
host = "db.internal"
port = 6432

[telegram]
bot_token = "123:abc"
mode = "webhook"
webhook_url = "https://relay.example.com/api/v1/webhook/telegram"

[retention]
enabled = true
message_days = 30
schedule = "0 4 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://support.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 6432, cfg.Postgres.Port)
	assert.True(t, cfg.Telegram.WebhookMode())
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 30, cfg.Retention.MessageDays)
	// Keys the file does not set keep their defaults.
	assert.Equal(t, DefaultPGUser, cfg.Postgres.User)
	assert.Equal(t, DefaultThreadIdleDays, cfg.Retention.ThreadIdleDays)
}

func TestLoadWebhookModeRequiresURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[telegram]
bot_token = "123:abc"
mode = "webhook"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook_url")
}

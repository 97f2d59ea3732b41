package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultWatchlist, cfg.Symbols.List)
	assert.Equal(t, 1.0, cfg.RTD.PollIntervalSeconds)
	assert.Equal(t, 30.0, cfg.RTD.RetryDelaySeconds)
	assert.Equal(t, 3, cfg.RTD.MaxActivationRetries)
	assert.Equal(t, 11.0, cfg.RTD.StopTimeoutSeconds)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[mt5]
bridge_url = "http://bridge:9000"
login = 111
server = "Demo-Server"

[rtd]
poll_interval_seconds = 2
max_activation_retries = 5

[symbols]
list = [" petr4", "VALE3", "petr4", ""]

[sqlite]
enabled = true
path = "x.db"
`)
	t.Setenv("MT5_LOGIN", "424242")
	t.Setenv("MT5_PASSWORD", "secret")
	t.Setenv("RTD_RETRY_DELAY_SECONDS", "45")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(424242), cfg.MT5.Login)
	assert.Equal(t, "secret", cfg.MT5.Password)
	assert.Equal(t, "Demo-Server", cfg.MT5.Server)
	assert.Equal(t, 2.0, cfg.RTD.PollIntervalSeconds)
	assert.Equal(t, 45.0, cfg.RTD.RetryDelaySeconds)
	assert.Equal(t, 5, cfg.RTD.MaxActivationRetries)
	assert.Equal(t, []string{"PETR4", "VALE3"}, cfg.Symbols.List)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "rtd", cfg.Redis.Prefix)
}

func TestLoadComposesPostgresDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "rtd")
	t.Setenv("DB_PASSWORD", "p@ss")
	t.Setenv("DB_NAME", "market")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "postgresql://rtd:p%40ss@db:5432/market", cfg.Postgres.DSN)
}

func TestLoadDatabaseURLWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@h/db")
	t.Setenv("DB_HOST", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/db", cfg.Postgres.DSN)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("MT5_LOGIN", "abc")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("MT5_LOGIN", "")
	path := writeConfig(t, `
[postgres]
enabled = true
dsn = "postgres://x"

[sqlite]
enabled = true
`)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
server:
  port: "9000"
store:
  driver: postgres
race:
  max_games: 5
  elapsed_tolerance: 10s
  guest_token_cost: 4
auth:
  jwt_secret: file-secret
outbox:
  sinks: [jetstream, redis]
  fallback_interval: 1m
gateway:
  source: jetstream
log:
  level: debug
  format: json
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Race.MaxGames)
	assert.Equal(t, 100, cfg.Race.MaxNameLength, "unset keys keep defaults")
	assert.Equal(t, 10*time.Second, cfg.Race.ElapsedTolerance)
	assert.Equal(t, 4, cfg.Race.GuestTokenCost)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret, "env overrides file")
	assert.Equal(t, "dailies", cfg.Auth.Issuer)
	assert.Equal(t, time.Minute, cfg.Outbox.FallbackInterval)
	assert.True(t, cfg.HasSink(SinkRedis))
	assert.False(t, cfg.HasSink(SinkLocal))
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "RACE_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OUTBOX_SINKS", "log,local")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, []string{SinkLog, SinkLocal}, cfg.Outbox.Sinks)
	assert.Equal(t, SinkLocal, cfg.Gateway.Source)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
store:
  driver: sqlite
outbox:
  sinks: [kafka]
gateway:
  source: carrier-pigeon
log:
  level: loud
`)
	t.Setenv("JWT_SECRET", "")
	_, err := Load(path)
	require.Error(t, err)
	for _, want := range []string{"store.driver", "jwt_secret", "kafka", "gateway.source", "log.level"} {
		assert.ErrorContains(t, err, want)
	}

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, "certflow.audit", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Database.URL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CERTFLOW_SWEEP_INTERVAL", "15m")
	t.Setenv("CERTFLOW_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("CERTFLOW_WEBHOOK_RATE", "2.5")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.InDelta(t, 2.5, cfg.Webhook.RatePerSec, 0.001)
}

func TestValidate(t *testing.T) {
	t.Run("rejects zero workers", func(t *testing.T) {
		t.Setenv("CERTFLOW_SWEEP_WORKERS", "0")
		_, err := FromEnv()
		assert.Error(t, err)
	})
	t.Run("requires signing key in production", func(t *testing.T) {
		t.Setenv("CERTFLOW_ENV", "production")
		_, err := FromEnv()
		assert.Error(t, err)
	})
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CERTFLOW_ADDR=:9999\n"), 0o600))
	t.Setenv("CERTFLOW_ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv("CERTFLOW_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	t.Setenv("CERTFLOW_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	_, err := Load()
	assert.NoError(t, err)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "", cfg.Model.Provider)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 0.5, cfg.Engine.MinConfidence)
	assert.Equal(t, 50, cfg.Engine.MaxEntities)
	assert.Equal(t, 12*time.Hour, cfg.Session.SnapshotTTL)
	assert.Equal(t, 2*time.Minute, cfg.Session.LockTTL)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestLoad_ModelConfig(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("ENGINE_MIN_CONFIDENCE", "0.7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("REDIS_HOST", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "test-key", cfg.Anthropic.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 0.7, cfg.Engine.MinConfidence)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis:6379", cfg.Redis.RedisAddr())
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "watson")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("ENGINE_MIN_CONFIDENCE", "1.5")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SESSION_SNAPSHOT_TTL", "forever")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Session.SnapshotTTL)
}

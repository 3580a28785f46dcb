package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, time.Second, cfg.DB.SlowThreshold)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Zero(t, cfg.Worker.StaleLockTimeout)
	assert.False(t, cfg.StageRunInline)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("AI_PROVIDER", " Mock ")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("JOB_STALE_LOCK_TIMEOUT", "600")
	t.Setenv("STAGE_RUN_INLINE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:5173")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "mock", cfg.DefaultProvider)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Worker.StaleLockTimeout)
	assert.True(t, cfg.StageRunInline)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brandbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\njob_max_attempts: 5\nai_preset: quality\n"), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.JobMaxAttempts)
	assert.Equal(t, "quality", cfg.DefaultPreset)
}

func TestLoadConfigRejectsZeroAttempts(t *testing.T) {
	t.Setenv("JOB_MAX_ATTEMPTS", "0")
	v, err := NewViper("")
	require.NoError(t, err)
	_, err = LoadConfig(v)
	assert.Error(t, err)
}

func TestNewViperMissingFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

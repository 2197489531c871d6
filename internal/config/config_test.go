package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ACCESS_TTL", "")
	cfg := Load()
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 8, cfg.BulkParallelism)
	assert.Equal(t, "08:00", cfg.LateAfter)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("STORE_CALL_TIMEOUT", "750ms")
	t.Setenv("BULK_PARALLELISM", "3")
	t.Setenv("LOG_HEALTH_CHECKS", "true")
	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreCallTimeout)
	assert.Equal(t, 3, cfg.BulkParallelism)
	assert.True(t, cfg.LogHealthChecks)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORE_CALL_TIMEOUT", "soon")
	t.Setenv("BULK_PARALLELISM", "many")
	t.Setenv("LOG_HEALTH_CHECKS", "maybe")
	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.StoreCallTimeout)
	assert.Equal(t, 8, cfg.BulkParallelism)
	assert.False(t, cfg.LogHealthChecks)
}

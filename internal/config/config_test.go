package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("RESOLVER_SCAN_LIMIT", "")
	t.Setenv("MIGRATION_LOCK_TTL", "")

	cfg := Load()
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 500, cfg.ResolverScanLimit)
	assert.Equal(t, 30*time.Minute, cfg.MigrationLockTTL)
	assert.Equal(t, "crm:events", cfg.EventsChannel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("RESOLVER_SCAN_LIMIT", "2000")
	t.Setenv("MIGRATION_LOCK_TTL", "5m")
	t.Setenv("APP_ENV", "development")

	cfg := Load()
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 2000, cfg.ResolverScanLimit)
	assert.Equal(t, 5*time.Minute, cfg.MigrationLockTTL)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("RESOLVER_SCAN_LIMIT", "lots")
	t.Setenv("MIGRATION_LOCK_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 500, cfg.ResolverScanLimit)
	assert.Equal(t, 30*time.Minute, cfg.MigrationLockTTL)
}

func TestValidate(t *testing.T) {
	assert.Error(t, AppConfig{StoreBackend: BackendPostgres}.Validate())
	assert.Error(t, AppConfig{StoreBackend: BackendFirestore}.Validate())
	assert.Error(t, AppConfig{StoreBackend: "mongo"}.Validate())
	assert.NoError(t, AppConfig{StoreBackend: BackendPostgres, DatabaseURL: "postgres://x"}.Validate())
	assert.Error(t, AppConfig{StoreBackend: BackendMemory, ResolverScanLimit: -1}.Validate())
}

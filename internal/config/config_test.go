package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.False(t, cfg.StrictLeadTransitions)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_ACCESS_TTL", "1h")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("LEAD_STRICT_TRANSITIONS", "true")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, time.Hour, cfg.JWTAccessTTL)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.True(t, cfg.StrictLeadTransitions)
	assert.Equal(t, 3, cfg.MaxRetries, "invalid ints fall back to the default")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"same secrets", func(c *Config) { c.JWTRefreshSecret = c.JWTAccessSecret }},
		{"empty secret", func(c *Config) { c.JWTAccessSecret = "" }},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }},
		{"supabase without key", func(c *Config) { c.StoreBackend = BackendSupabase; c.SupabaseURL = "http://x" }},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }},
		{"redis without addr", func(c *Config) { c.CacheBackend = "redis" }},
		{"admin email without password", func(c *Config) { c.AdminEmail = "admin@test.com" }},
		{"zero ttl", func(c *Config) { c.JWTAccessTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DevSecretsOnlyWithMemoryBackend(t *testing.T) {
	cfg := Load()
	cfg.JWTAccessSecret = devAccessSecret
	cfg.JWTRefreshSecret = devRefreshSecret
	cfg.StoreBackend = BackendMemory
	cfg.CacheBackend = "memory"
	cfg.AdminEmail, cfg.AdminPassword = "", ""
	assert.NoError(t, cfg.Validate())

	cfg.StoreBackend = BackendPostgres
	cfg.DatabaseURL = "postgres://crm@localhost/crm"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "development JWT secrets")

	cfg.JWTAccessSecret = "prod-access"
	cfg.JWTRefreshSecret = "prod-refresh"
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nCRM_TEST_A=one\nexport CRM_TEST_B=\"two\"\nCRM_TEST_C='three'\nmalformed\nCRM_TEST_KEEP=file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CRM_TEST_KEEP", "env")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() {
		os.Unsetenv("CRM_TEST_A")
		os.Unsetenv("CRM_TEST_B")
		os.Unsetenv("CRM_TEST_C")
	})

	assert.Equal(t, "one", os.Getenv("CRM_TEST_A"))
	assert.Equal(t, "two", os.Getenv("CRM_TEST_B"))
	assert.Equal(t, "three", os.Getenv("CRM_TEST_C"))
	assert.Equal(t, "env", os.Getenv("CRM_TEST_KEEP"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("TX_MAX_RETRIES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "postgres://postgres:postgres@db:5432/postgres?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Database.MaxRetries)
	assert.Equal(t, "default_super_secret_key", cfg.Auth.JWTSecret)
	assert.Equal(t, 10, cfg.Ledger.LowStockThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("DATABASE_URL", "postgres://u:p@h:1/d")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCOUNT_CACHE_TTL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@h:1/d", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Redis.AccountTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

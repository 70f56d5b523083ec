package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/trading")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(8080, cfg.Port)
	assert.Equal([]string{"*"}, cfg.AllowedOrigins)
	assert.Equal(12*time.Hour, cfg.JWTTTL)
	assert.Equal(30*time.Second, cfg.SaveInterval)
	assert.Equal("info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/trading")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("SAVE_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(9000, cfg.Port)
	assert.Equal([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(2*time.Hour, cfg.JWTTTL)
	assert.Equal(5*time.Second, cfg.SaveInterval)
	assert.Equal("debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("PORT", "eighty")
	t.Setenv("JWT_TTL", "forever")

	_, err := Load()

	require.Error(t, err)
	for _, key := range []string{"DATABASE_URL", "JWT_SECRET", "PORT", "JWT_TTL"} {
		assert.ErrorContains(t, err, key)
	}
}

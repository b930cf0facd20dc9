package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnvFile(t *testing.T, path string) {
	t.Helper()
	orig := envFile
	envFile = path
	t.Cleanup(func() { envFile = orig })
}

func TestParseEnv_OverridesDefaults(t *testing.T) {
	withEnvFile(t, filepath.Join(t.TempDir(), "missing.env"))

	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("SECRET_KEY", "env-secret")
	t.Setenv("RETIRED_SECRET_KEYS", "k0:old, bad ,k-1:older")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("REFRESH_TOKEN_TTL", "48h")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("REGISTRY_BACKEND", "redis")
	t.Setenv("BCRYPT_COST", "12")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, ":9999", c.EndpointAddrHTTP)
	assert.Equal(t, "env-secret", c.SecretKey)
	assert.Equal(t, map[string]string{"k0": "old", "k-1": "older"}, c.RetiredSecretKeys)
	assert.Equal(t, 5*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 48*time.Hour, c.RefreshTokenValidityDuration)
	assert.False(t, c.CookieSecure)
	assert.Equal(t, BackendRedis, c.RegistryBackend)
	assert.Equal(t, 12, c.BcryptCost)
}

func TestParseEnv_InvalidValuesKeepDefaults(t *testing.T) {
	withEnvFile(t, filepath.Join(t.TempDir(), "missing.env"))

	t.Setenv("ACCESS_TOKEN_TTL", "soon")
	t.Setenv("COOKIE_SECURE", "maybe")
	t.Setenv("BCRYPT_COST", "lots")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.True(t, c.CookieSecure)
	assert.Equal(t, 10, c.BcryptCost)
}

func TestParseEnv_ReadsDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_FORMAT=text\nMONGODB_URI=mongodb://db:27017\n"), 0o600))
	withEnvFile(t, path)

	// register for cleanup before godotenv sets them
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("MONGODB_URI", "")
	require.NoError(t, os.Unsetenv("LOG_FORMAT"))
	require.NoError(t, os.Unsetenv("MONGODB_URI"))

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, "mongodb://db:27017", c.MongoURI)
}

func TestParseKeyring(t *testing.T) {
	assert.Equal(t, map[string]string{"a": "1", "b": "x:y"}, ParseKeyring("a:1,b:x:y,:nokid,nosecret:"))
	assert.Empty(t, ParseKeyring(""))
}

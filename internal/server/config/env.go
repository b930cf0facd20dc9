package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envFile is loaded into the process environment when present. Variables that
// are already set win over the file.
var envFile = ".env"

// parseEnv overlays Config with values from environment variables. Unset or
// unparsable variables leave the current value in place.
func parseEnv(c *Config) {
	_ = godotenv.Load(envFile)

	c.EndpointAddrHTTP = getEnv("HTTP_ADDR", c.EndpointAddrHTTP)
	c.DatabaseDSN = getEnv("DATABASE_DSN", c.DatabaseDSN)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.AllowedOrigins = getEnv("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.SecretKey = getEnv("SECRET_KEY", c.SecretKey)
	c.SecretKeyID = getEnv("SECRET_KEY_ID", c.SecretKeyID)
	if v := os.Getenv("RETIRED_SECRET_KEYS"); v != "" {
		c.RetiredSecretKeys = ParseKeyring(v)
	}
	c.AccessTokenValidityDuration = getEnvAsDuration("ACCESS_TOKEN_TTL", c.AccessTokenValidityDuration)
	c.RefreshTokenValidityDuration = getEnvAsDuration("REFRESH_TOKEN_TTL", c.RefreshTokenValidityDuration)

	c.RefreshTokenCookie = getEnv("REFRESH_TOKEN_COOKIE", c.RefreshTokenCookie)
	c.CookiePath = getEnv("COOKIE_PATH", c.CookiePath)
	c.CookieDomain = getEnv("COOKIE_DOMAIN", c.CookieDomain)
	c.CookieSecure = getEnvAsBool("COOKIE_SECURE", c.CookieSecure)
	c.CookieSameSite = getEnv("COOKIE_SAMESITE", c.CookieSameSite)

	c.UserStore = getEnv("USER_STORE", c.UserStore)
	c.RegistryBackend = getEnv("REGISTRY_BACKEND", c.RegistryBackend)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("DATABASE_NAME", c.MongoDatabase)
	c.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.SweepInterval)

	c.PasswordAlgorithm = getEnv("PASSWORD_ALGO", c.PasswordAlgorithm)
	c.BcryptCost = getEnvAsInt("BCRYPT_COST", c.BcryptCost)
}

// ParseKeyring parses "kid:secret,kid2:secret2". Entries without a colon or
// with an empty part are skipped.
func ParseKeyring(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		id, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || id == "" || secret == "" {
			continue
		}
		out[id] = secret
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getEnvAsBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

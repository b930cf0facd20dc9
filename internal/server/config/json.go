package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authcore/internal/flagx"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// both "15m" style strings and integer nanoseconds. Only non-zero fields
// override the current Config.
type JsonConfig struct {
	EndpointAddrHTTP             string            `json:"endpoint_addr_http"`
	DatabaseDSN                  string            `json:"database_dsn"`
	SecretKey                    string            `json:"secret_key"`
	SecretKeyID                  string            `json:"secret_key_id"`
	RetiredSecretKeys            map[string]string `json:"retired_secret_keys"`
	AccessTokenValidityDuration  timex.Duration    `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration    `json:"refresh_token_validity_duration"`
	RefreshTokenCookie           string            `json:"refresh_token_cookie"`
	CookieDomain                 string            `json:"cookie_domain"`
	CookieSecure                 *bool             `json:"cookie_secure"`
	CookieSameSite               string            `json:"cookie_same_site"`
	UserStore                    string            `json:"user_store"`
	RegistryBackend              string            `json:"registry_backend"`
	RedisURL                     string            `json:"redis_url"`
	MongoURI                     string            `json:"mongo_uri"`
	MongoDatabase                string            `json:"mongo_database"`
	SweepInterval                timex.Duration    `json:"sweep_interval"`
	LogFormat                    string            `json:"log_format"`
}

// parseJson loads the file named by -c/-config, if any, and copies its
// non-empty values into config. Unreadable files and invalid JSON panic.
func parseJson(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SecretKeyID, c.SecretKeyID)
	if len(c.RetiredSecretKeys) > 0 {
		config.RetiredSecretKeys = c.RetiredSecretKeys
	}
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.RefreshTokenCookie, c.RefreshTokenCookie)
	setString(&config.CookieDomain, c.CookieDomain)
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.CookieSameSite, c.CookieSameSite)
	setString(&config.UserStore, c.UserStore)
	setString(&config.RegistryBackend, c.RegistryBackend)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	if c.SweepInterval.Duration > 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

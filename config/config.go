// Package config provides environment-based configuration for the Portunus
// demo bank.
//
// Configuration is loaded from environment variables using Viper, with sensible
// defaults for development. This package handles server settings, session store
// selection, the upstream OIDC provider, and the revocation token verifier.
//
// # Environment Variables
//
//   - PORT: HTTP server port. Default: 8080
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - BASE_URL: Externally visible base URL. Default: http://localhost:8080
//   - SESSION_STORE: Session store backend (memory, redis). Default: memory
//   - REDIS_ADDR: Redis address when SESSION_STORE=redis. Default: localhost:6379
//   - DSN: SQLite path for the preferences database. Default: portunus.db
//
// # OIDC Provider Configuration
//
// Primary login and step-up re-authentication are delegated to an external
// identity provider:
//
//	OIDC_ISSUER=https://dev-123456.okta.com/oauth2/default
//	OIDC_CLIENT_ID=your-client-id
//	OIDC_CLIENT_SECRET=your-secret
//	OIDC_REDIRECT_URL=http://localhost:8080/authorization-code/callback
//
// # Revocation Verifier Configuration
//
// The global token revocation endpoint verifies bearer tokens issued by the
// identity provider:
//
//	REVOCATION_ISSUER=https://dev-123456.okta.com/oauth2/default
//	REVOCATION_AUDIENCE=api://portunus
//	REVOCATION_JWKS_URL=https://dev-123456.okta.com/oauth2/default/v1/keys
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port         int    `mapstructure:"PORT"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
	BaseURL      string `mapstructure:"BASE_URL"`
	SessionStore string `mapstructure:"SESSION_STORE"` // memory, redis
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	DSN          string `mapstructure:"DSN"`

	OIDC       OIDCProvider `mapstructure:",squash"`
	Revocation Revocation   `mapstructure:",squash"`
}

type OIDCProvider struct {
	Issuer       string `mapstructure:"OIDC_ISSUER"`
	ClientID     string `mapstructure:"OIDC_CLIENT_ID"`
	ClientSecret string `mapstructure:"OIDC_CLIENT_SECRET"`
	RedirectURL  string `mapstructure:"OIDC_REDIRECT_URL"`
}

type Revocation struct {
	Issuer   string `mapstructure:"REVOCATION_ISSUER"`
	Audience string `mapstructure:"REVOCATION_AUDIENCE"`
	JWKSURL  string `mapstructure:"REVOCATION_JWKS_URL"`
}

// envKeys are the variables without a default. AutomaticEnv only resolves
// keys viper already knows about, so each of these needs an explicit bind or
// Unmarshal leaves the field empty no matter what the environment says.
var envKeys = []string{
	"OIDC_ISSUER",
	"OIDC_CLIENT_ID",
	"OIDC_CLIENT_SECRET",
	"OIDC_REDIRECT_URL",
	"REVOCATION_ISSUER",
	"REVOCATION_AUDIENCE",
	"REVOCATION_JWKS_URL",
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("BASE_URL", "http://localhost:8080")
	viper.SetDefault("SESSION_STORE", "memory")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("DSN", "portunus.db") // Default to sqlite if not provided

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

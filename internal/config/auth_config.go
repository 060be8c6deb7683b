package config

import (
	"time"
)

type AuthConfig interface {
	GetTokenIssuer() string
	GetTokenAudience() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration

	// Signing key for our own access tokens. Empty PEM means generate an
	// ephemeral key at boot (dev profile only; restarts invalidate tokens).
	GetSigningKeyID() string
	GetSigningKeyPEM() string

	// Sign in with Apple credentials.
	GetAppleClientID() string
	GetAppleTeamID() string
	GetAppleKeyID() string
	GetAppleSigningKeyPEM() string

	// Optional webhook for reuse-detection alerts.
	GetSecurityWebhookURL() string
}

type Auth struct{}

var _ AuthConfig = Auth{}

func (a Auth) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", EnvVars{}.GetBaseURL())
}

func (Auth) GetTokenAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "verbio-api")
}

func (Auth) GetAccessTokenTTL() time.Duration {
	return getDurationEnv("ACCESS_TOKEN_TTL", time.Hour)
}

func (Auth) GetRefreshTokenTTL() time.Duration {
	return getDurationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
}

func (Auth) GetSigningKeyID() string {
	return GetEnv("SIGNING_KEY_ID", "verbio-auth-1")
}

func (Auth) GetSigningKeyPEM() string {
	return GetEnv("SIGNING_KEY_PEM", "")
}

func (Auth) GetAppleClientID() string {
	return GetEnv("APPLE_CLIENT_ID", "")
}

func (Auth) GetAppleTeamID() string {
	return GetEnv("APPLE_TEAM_ID", "")
}

func (Auth) GetAppleKeyID() string {
	return GetEnv("APPLE_KEY_ID", "")
}

func (Auth) GetAppleSigningKeyPEM() string {
	return GetEnv("APPLE_SIGNING_KEY_PEM", "")
}

func (Auth) GetSecurityWebhookURL() string {
	return GetEnv("SECURITY_WEBHOOK_URL", "")
}

func getDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

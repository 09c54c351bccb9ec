// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:           "8080",
			ReadTimeout:    15,
			WriteTimeout:   30,
			IdleTimeout:    60,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{Host: "localhost", Port: "5432", User: "postgres", Database: "digistore"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Webhook: WebhookConfig{
			Secret:        "whsec",
			SignatureMode: SignatureModeEnforce,
			MaxBodyBytes:  64 * 1024,
		},
		Gateway: GatewayConfig{
			Provider:  "mercadopago",
			BaseURL:   "https://api.mercadopago.com",
			Timeout:   8 * time.Second,
			RateLimit: 10,
			Burst:     20,
		},
		JWT: JWTConfig{SecretKey: "operator-secret", AccessTokenTTL: 12},
	}
}

func TestResolvedMode(t *testing.T) {
	assert.Equal(t, SignatureModeEnforce, WebhookConfig{SignatureMode: SignatureModeEnforce}.ResolvedMode())
	assert.Equal(t, SignatureModePermissive, WebhookConfig{Secret: "s"}.ResolvedMode())
	assert.Equal(t, SignatureModeDisabled, WebhookConfig{}.ResolvedMode())
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown signature mode", func(c *Config) { c.Webhook.SignatureMode = "lenient" }},
		{"enforce without secret", func(c *Config) { c.Webhook.Secret = "" }},
		{"tiny body limit", func(c *Config) { c.Webhook.MaxBodyBytes = 10 }},
		{"gateway url", func(c *Config) { c.Gateway.BaseURL = "not a url" }},
		{"no origins", func(c *Config) { c.Server.AllowedOrigins = nil }},
		{"bad origin", func(c *Config) { c.Server.AllowedOrigins = []string{"localhost"} }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"production default jwt", func(c *Config) {
			c.Environment = "production"
			c.Database.Password = "pw"
			c.JWT.SecretKey = defaultJWTSecret
		}},
		{"production without db password", func(c *Config) { c.Environment = "production" }},
		{"production disabled signatures", func(c *Config) {
			c.Environment = "production"
			c.Database.Password = "pw"
			c.Webhook.SignatureMode = SignatureModeDisabled
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("WEBHOOK_SIGNATURE_MODE", "")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SignatureModeDisabled, cfg.Webhook.SignatureMode)
	assert.EqualValues(t, 64*1024, cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, 8*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, []string{"https://ops.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoadResolvesPermissiveMode(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("WEBHOOK_SIGNATURE_MODE", "")
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SignatureModePermissive, cfg.Webhook.SignatureMode)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Database: "shop", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=shop sslmode=disable TimeZone=UTC", d.DSN())

	d.Password = `it's a secret`
	d.SSLMode = ""
	assert.Equal(t, `host=db port=5432 user=u password='it\'s a secret' dbname=shop TimeZone=UTC`, d.DSN())
}

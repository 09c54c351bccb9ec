// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string `validate:"required,oneof=development staging production test"`
	Server       ServerConfig
	Database     DatabaseConfig
	Log          LogConfig
	Webhook      WebhookConfig
	Gateway      GatewayConfig
	Notification NotificationConfig
	Email        EmailConfig
	AWS          AWSConfig
	JWT          JWTConfig
}

type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	Host         string
	ReadTimeout  int `validate:"min=1"`
	WriteTimeout int `validate:"min=1"`
	IdleTimeout  int `validate:"min=1"`
	// Origins allowed to call the operator API from a browser
	AllowedOrigins []string `validate:"min=1,dive,url"`
}

type DatabaseConfig struct {
	Host         string `validate:"required"`
	Port         string `validate:"required"`
	User         string `validate:"required"`
	Password     string
	Database     string `validate:"required"`
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn warning error"`
	Format string `validate:"oneof=text json"`
}

// SignatureMode selects how inbound webhook signatures are treated.
type SignatureMode string

const (
	// SignatureModeEnforce rejects events without a valid signature header.
	SignatureModeEnforce SignatureMode = "enforce"
	// SignatureModePermissive accepts events that carry no signature header
	// (with a warning) but rejects a header that does not match.
	SignatureModePermissive SignatureMode = "permissive"
	// SignatureModeDisabled skips validation entirely.
	SignatureModeDisabled SignatureMode = "disabled"
)

type WebhookConfig struct {
	Secret        string
	SignatureMode SignatureMode `validate:"oneof=enforce permissive disabled"`
	MaxBodyBytes  int64         `validate:"min=1024"`
}

type GatewayConfig struct {
	Provider  string        `validate:"required"`
	BaseURL   string        `validate:"required,url"`
	Timeout   time.Duration `validate:"min=1ms"`
	RateLimit float64       `validate:"gt=0"` // requests per second
	Burst     int           `validate:"min=1"`
}

type NotificationConfig struct {
	Timeout time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	DeliverableTTL  time.Duration
}

type JWTConfig struct {
	SecretKey      string `validate:"required"`
	AccessTokenTTL int    // in hours
}

const defaultJWTSecret = "change-me-operator-secret"

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "digistore"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
		Webhook: WebhookConfig{
			Secret:        getEnv("WEBHOOK_SECRET", ""),
			SignatureMode: SignatureMode(strings.ToLower(getEnv("WEBHOOK_SIGNATURE_MODE", ""))),
			MaxBodyBytes:  int64(getEnvAsInt("WEBHOOK_MAX_BODY_BYTES", 64*1024)),
		},
		Gateway: GatewayConfig{
			Provider:  getEnv("GATEWAY_PROVIDER", "mercadopago"),
			BaseURL:   getEnv("GATEWAY_BASE_URL", "https://api.mercadopago.com"),
			Timeout:   getEnvAsDuration("GATEWAY_TIMEOUT", 8*time.Second),
			RateLimit: getEnvAsFloat("GATEWAY_RATE_LIMIT", 10),
			Burst:     getEnvAsInt("GATEWAY_BURST", 20),
		},
		Notification: NotificationConfig{
			Timeout: getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@digistore.local"),
			FromName:     getEnv("FROM_NAME", "Digistore"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "digistore-deliverables"),
			DeliverableTTL:  getEnvAsDuration("DELIVERABLE_URL_TTL", 72*time.Hour),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
		},
	}

	config.Webhook.SignatureMode = config.Webhook.ResolvedMode()

	return config, config.Validate()
}

// ResolvedMode fills in the signature mode when none was configured:
// permissive when a secret exists, disabled otherwise.
func (w WebhookConfig) ResolvedMode() SignatureMode {
	if w.SignatureMode != "" {
		return w.SignatureMode
	}
	if w.Secret != "" {
		return SignatureModePermissive
	}
	return SignatureModeDisabled
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Webhook.SignatureMode != SignatureModeDisabled && c.Webhook.Secret == "" {
		return fmt.Errorf("webhook signature mode %q requires WEBHOOK_SECRET", c.Webhook.SignatureMode)
	}

	if c.Environment == "production" {
		if c.JWT.SecretKey == defaultJWTSecret {
			return fmt.Errorf("JWT secret key must be changed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Webhook.SignatureMode == SignatureModeDisabled {
			return fmt.Errorf("webhook signature validation cannot be disabled in production")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

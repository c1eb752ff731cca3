package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Stripe    StripeConfig
	Email     EmailConfig
	RateLimit RateLimitConfig

	// AdminToken guards the admin routes. Empty disables them.
	AdminToken string
	NodeID     int64

	CORSAllowedOrigins []string
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance int64
	MaxNetworkRetry  int64
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ResendRate       float64
	ResendBurst      int
	ResendLockTTLSec int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "donara"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:       getenv("DATABASE_TYPE", "postgres"),
		DBHost:       getenv("DATABASE_HOST", "localhost"),
		DBPort:       getenv("DATABASE_PORT", "5432"),
		DBName:       getenv("DATABASE_NAME", "donara"),
		DBUser:       getenv("DATABASE_USER", "postgres"),
		DBPassword:   getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:    getenv("DATABASE_SSLMODE", "disable"),
		DBPath:       getenv("DATABASE_PATH", "donara.db"),

		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			WebhookTolerance: getenvInt64("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
			MaxNetworkRetry:  getenvInt64("STRIPE_MAX_NETWORK_RETRIES", 2),
		},
		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", false),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("EMAIL_FROM", "receipts@donara.local"),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:        getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:          getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ResendRate:       getenvFloat("RATE_LIMIT_RESEND_RATE", 0.05),
			ResendBurst:      getenvInt("RATE_LIMIT_RESEND_BURST", 3),
			ResendLockTTLSec: getenvInt("RATE_LIMIT_RESEND_LOCK_TTL_SECONDS", 30),
		},
		AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		NodeID:     getenvInt64("SNOWFLAKE_NODE_ID", 1),

		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS"),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Mail      MailConfig
	TwoFactor TwoFactorConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	Environment    string
	MetricsEnabled bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CookieName         string
	CookieSecure       bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Enabled reports whether a Redis host was configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

type MailConfig struct {
	Driver  string // smtp, ses, sendgrid, console
	From    string
	AppName string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	SendGridAPIKey  string
	SendGridSandbox bool
}

// TwoFactorConfig holds the login code lifecycle limits.
type TwoFactorConfig struct {
	CodeTTL            time.Duration
	MaxAttempts        int
	Cooldown           time.Duration
	MaxRequestsPerHour int
	RateLimitWindow    time.Duration
	CodeRetention      time.Duration
	RateLimitRetention time.Duration
	CleanupSchedule    string
	LimitByIP          bool
	// CodeHashKey switches code digests to HMAC-SHA256 when set.
	CodeHashKey string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "debug"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "storefront"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", "your-secret-key"),
			AccessTokenExpiry:  parseDuration(getEnv("JWT_ACCESS_TOKEN_EXPIRY", "15m"), 15*time.Minute),
			RefreshTokenExpiry: parseDuration(getEnv("JWT_REFRESH_TOKEN_EXPIRY", "168h"), 168*time.Hour),
			CookieName:         getEnv("AUTH_COOKIE_NAME", "auth_token"),
			CookieSecure:       getEnvBool("AUTH_COOKIE_SECURE", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Mail: MailConfig{
			Driver:             getEnv("MAIL_DRIVER", "console"),
			From:               getEnv("MAIL_FROM", "no-reply@lojamoda.com.br"),
			AppName:            getEnv("MAIL_APP_NAME", "Loja Moda"),
			SMTPHost:           getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:           getEnvInt("SMTP_PORT", 587),
			SMTPUser:           getEnv("SMTP_USER", ""),
			SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
			SESRegion:          getEnv("AWS_REGION", "sa-east-1"),
			SESAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SESSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
			SendGridSandbox:    getEnvBool("SENDGRID_SANDBOX", false),
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:            parseDuration(getEnv("TWO_FACTOR_CODE_TTL", "10m"), 10*time.Minute),
			MaxAttempts:        getEnvInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			Cooldown:           parseDuration(getEnv("TWO_FACTOR_COOLDOWN", "60s"), time.Minute),
			MaxRequestsPerHour: getEnvInt("TWO_FACTOR_MAX_REQUESTS_PER_HOUR", 5),
			RateLimitWindow:    parseDuration(getEnv("TWO_FACTOR_RATE_LIMIT_WINDOW", "1h"), time.Hour),
			CodeRetention:      parseDuration(getEnv("TWO_FACTOR_CODE_RETENTION", "24h"), 24*time.Hour),
			RateLimitRetention: parseDuration(getEnv("TWO_FACTOR_RATE_LIMIT_RETENTION", "24h"), 24*time.Hour),
			CleanupSchedule:    getEnv("TWO_FACTOR_CLEANUP_SCHEDULE", "@hourly"),
			LimitByIP:          getEnvBool("TWO_FACTOR_LIMIT_BY_IP", false),
			CodeHashKey:        getEnv("TWO_FACTOR_CODE_HASH_KEY", ""),
		},
	}

	if config.Server.Environment == "production" && config.JWT.Secret == "your-secret-key" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid boolean for %s=%q, using default %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

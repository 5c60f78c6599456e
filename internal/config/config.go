// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	I18n        I18nConfig
	Workflow    WorkflowConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port               string
	Host               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	RateLimitPerSecond int // per client; 0 disables the limiter
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type AWSConfig struct {
	Region              string
	AccessKeyID         string
	SecretAccessKey     string
	S3Bucket            string
	PermittedMediaTypes []string
}

type PaymentConfig struct {
	StripeSecretKey string
	Currency        string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type I18nConfig struct {
	DefaultLocale string
}

// WorkflowConfig controls request deadlines and the auto-approval sweep.
type WorkflowConfig struct {
	DefaultResponseDays  int
	Timezone             string
	HolidaysFile         string
	SweepIntervalSeconds int // 0 disables the in-process sweeper
	SweepConcurrency     int
	NotificationWorkers  int
	NotificationQueue    int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Host:               getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:        getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:       getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:        getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			RateLimitPerSecond: getEnvAsInt("RATE_LIMIT_PER_SECOND", 20),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "planning_backoffice"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "eu-west-2"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "planning-documents"),
			PermittedMediaTypes: getEnvAsList("PERMITTED_MEDIA_TYPES",
				[]string{"application/pdf", "image/png", "image/jpeg"}),
		},
		Payment: PaymentConfig{
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:        getEnv("PAYMENT_CURRENCY", "gbp"),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "planning@example.gov.uk"),
			FromName:     getEnv("FROM_NAME", "Planning Service"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Workflow: WorkflowConfig{
			DefaultResponseDays:  getEnvAsInt("DEFAULT_RESPONSE_DAYS", 15),
			Timezone:             getEnv("WORKFLOW_TIMEZONE", "Europe/London"),
			HolidaysFile:         getEnv("HOLIDAYS_FILE", ""),
			SweepIntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 0),
			SweepConcurrency:     getEnvAsInt("SWEEP_CONCURRENCY", 4),
			NotificationWorkers:  getEnvAsInt("NOTIFICATION_WORKERS", 2),
			NotificationQueue:    getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 256),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Workflow.DefaultResponseDays < 1 {
		return fmt.Errorf("DEFAULT_RESPONSE_DAYS must be positive, got %d", c.Workflow.DefaultResponseDays)
	}

	if c.Workflow.SweepConcurrency < 1 {
		c.Workflow.SweepConcurrency = 1
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, strings.ToLower(item))
		}
	}
	return items
}

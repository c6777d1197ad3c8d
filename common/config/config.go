package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Broker    BrokerConfig
	Providers ProvidersConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the connection settings for the broker/coordinator's
// Redis Streams backend.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// BrokerConfig holds the durable-delivery knobs the broker enforces on top
// of raw Redis Streams consumer groups.
type BrokerConfig struct {
	ConsumerGroup       string
	MaxDeliveries       int           // failed deliveries (first one included) before a message is dead-lettered
	MaxMessageAge       time.Duration // messages older than this are dead-lettered on next read
	ClaimIdleTime       time.Duration // XAUTOCLAIM idle threshold for picking up abandoned messages
	BlockTimeout        time.Duration // XREADGROUP BLOCK duration per poll
	ConcurrencyIngest   int
	ConcurrencyAI       int
	ConcurrencyActions  int
}

// ProvidersConfig holds the credentials for every external integration a
// node handler may call out to. A missing credential is not fatal at
// startup: each provider falls back to a deterministic degraded or
// simulated implementation. Only the AI fallback is reported on the node
// result (FallbackUsed); simulated action providers are not flagged.
type ProvidersConfig struct {
	AnthropicAPIKey        string
	SlackToken             string
	GoogleSheetsCredential string // path to a service-account JSON file
	SendGridAPIKey         string // concrete SMTP_* provider: SendGrid's HTTP API
	SendGridFromAddress    string
	TwilioAccountSID       string
	TwilioAuthToken        string
	TwilioFromNumber       string
	NotionAPIKey           string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "dagrunner"),
			User:        getEnv("POSTGRES_USER", "dagrunner"),
			Password:    getEnv("POSTGRES_PASSWORD", "dagrunner"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Broker: BrokerConfig{
			ConsumerGroup:      getEnv("BROKER_CONSUMER_GROUP", "dagrunner"),
			MaxDeliveries:      getEnvInt("BROKER_RETRY_COUNT", 3),
			MaxMessageAge:      time.Duration(getEnvInt("BROKER_MESSAGE_AGE_CAP_SECONDS", 3600)) * time.Second,
			ClaimIdleTime:      getEnvDuration("BROKER_CLAIM_IDLE_TIME", 30*time.Second),
			BlockTimeout:       getEnvDuration("BROKER_BLOCK_TIMEOUT", 5*time.Second),
			ConcurrencyIngest:  getEnvInt("QUEUE_CONCURRENCY_INGEST", 4),
			ConcurrencyAI:      getEnvInt("QUEUE_CONCURRENCY_AI", 4),
			ConcurrencyActions: getEnvInt("QUEUE_CONCURRENCY_ACTIONS", 4),
		},
		Providers: ProvidersConfig{
			AnthropicAPIKey:        getEnv("ANTHROPIC_API_KEY", ""),
			SlackToken:             getEnv("SLACK_TOKEN", ""),
			GoogleSheetsCredential: getEnv("GOOGLE_SHEETS_CREDENTIALS", ""),
			SendGridAPIKey:         getEnv("SMTP_API_KEY", ""),
			SendGridFromAddress:    getEnv("SMTP_FROM_ADDRESS", "workflows@example.com"),
			TwilioAccountSID:       getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:        getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFromNumber:       getEnv("TWILIO_FROM_NUMBER", ""),
			NotionAPIKey:           getEnv("NOTION_API_KEY", ""),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Broker.MaxDeliveries < 1 {
		return fmt.Errorf("broker max_deliveries must be >= 1")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the host:port address for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

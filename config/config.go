package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Generation  GenerationConfig  `mapstructure:"generation"`
	Publishing  PublishingConfig  `mapstructure:"publishing"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QueueConfig configures the asynq task queue shared by the API (producer)
// and the worker (consumer).
type QueueConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	QueueName   string `mapstructure:"queue_name"`
}

// PaymentConfig configures inbound payment-processor webhook verification.
type PaymentConfig struct {
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	SignatureTolerance time.Duration `mapstructure:"signature_tolerance"`
	SucceededEventType string        `mapstructure:"succeeded_event_type"`
	DedupTTL           time.Duration `mapstructure:"dedup_ttl"`
}

// GenerationConfig configures the content-generation collaborator.
type GenerationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PublishingConfig configures the WordPress publishing collaborator.
type PublishingConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Username    string        `mapstructure:"username"`
	AppPassword string        `mapstructure:"app_password"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// FulfillmentConfig holds pipeline policy values.
type FulfillmentConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`
	PostsPerOrder int `mapstructure:"posts_per_order"`
}

type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret"`
	JWTExpiry            time.Duration `mapstructure:"jwt_expiry"`
	JWTIssuer            string        `mapstructure:"jwt_issuer"`
	OperatorUsername     string        `mapstructure:"operator_username"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"` // argon2id encoded
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CFS_ (Content
// Fulfillment Service). Nested keys use underscore: CFS_DATABASE_HOST,
// CFS_PAYMENT_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "content_fulfillment")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queue_name", "fulfillment")
	v.SetDefault("payment.webhook_secret", "")
	v.SetDefault("payment.signature_tolerance", "5m")
	v.SetDefault("payment.succeeded_event_type", "payment_intent.succeeded")
	v.SetDefault("payment.dedup_ttl", "24h")
	v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model", "gpt-4o")
	v.SetDefault("generation.timeout", "120s")
	v.SetDefault("publishing.base_url", "")
	v.SetDefault("publishing.username", "")
	v.SetDefault("publishing.app_password", "")
	v.SetDefault("publishing.timeout", "30s")
	v.SetDefault("fulfillment.max_attempts", 3)
	v.SetDefault("fulfillment.posts_per_order", 3)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")
	v.SetDefault("auth.jwt_issuer", "content-fulfillment-service")
	v.SetDefault("auth.operator_username", "")
	v.SetDefault("auth.operator_password_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CFS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

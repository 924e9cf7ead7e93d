package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Payment   PaymentConfig   `yaml:"payment"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AppConfig struct {
	Name     string `yaml:"name" env:"APP_NAME"`
	Port     string `yaml:"port" env:"APP_PORT"`
	Env      string `yaml:"env" env:"APP_ENV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// Store selects the persistence driver: memory or postgres.
	Store string `yaml:"store" env:"STORE_DRIVER"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host" env:"DB_HOST"`
	Port            string        `yaml:"port" env:"DB_PORT"`
	User            string        `yaml:"user" env:"DB_USER"`
	Password        string        `yaml:"password" env:"DB_PASSWORD"`
	DBName          string        `yaml:"dbname" env:"DB_NAME"`
	SSLMode         string        `yaml:"sslmode" env:"DB_SSLMODE"`
	MaxConns        int32         `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"DB_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME"`
	MigrationsPath  string        `yaml:"migrations_path" env:"DB_MIGRATIONS_PATH"`
}

type PaymentConfig struct {
	BaseURL       string        `yaml:"base_url" env:"PAYPAL_BASE_URL"`
	ClientID      string        `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	ClientSecret  string        `yaml:"client_secret" env:"PAYPAL_CLIENT_SECRET"`
	WebhookSecret string        `yaml:"webhook_secret" env:"PAYPAL_WEBHOOK_SECRET"`
	ReturnURL     string        `yaml:"return_url" env:"PAYPAL_RETURN_URL"`
	CancelURL     string        `yaml:"cancel_url" env:"PAYPAL_CANCEL_URL"`
	Timeout       time.Duration `yaml:"timeout" env:"PAYPAL_TIMEOUT"`
}

type KafkaConfig struct {
	// Brokers is a comma separated list. Empty disables Kafka notifications.
	Brokers      string        `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic        string        `yaml:"topic" env:"KAFKA_TOPIC"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"KAFKA_WRITE_TIMEOUT"`
}

type RedisConfig struct {
	// Addr empty disables the processed-event marker.
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	EventTTL time.Duration `yaml:"event_ttl" env:"REDIS_EVENT_TTL"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "fulfillment-service"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.App.LogLevel = "debug"
	cfg.App.Store = StoreMemory

	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Postgres.MigrationsPath = "migrations"

	cfg.Payment.BaseURL = "https://api-m.sandbox.paypal.com"
	cfg.Payment.Timeout = 10 * time.Second

	cfg.Kafka.Topic = "order-notifications"
	cfg.Kafka.WriteTimeout = 5 * time.Second

	cfg.Redis.EventTTL = 72 * time.Hour

	cfg.RateLimit.RPS = 20
	cfg.RateLimit.Burst = 40
	return cfg
}

// NewConfig layers code defaults, the YAML file named by CONFIG_FILE, an optional .env
// file and the process environment, in that order.
func NewConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.App.Port == "" {
		problems = append(problems, "APP_PORT is required")
	}
	switch c.App.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" {
			problems = append(problems, "DB_HOST is required")
		}
		if c.Postgres.User == "" {
			problems = append(problems, "DB_USER is required")
		}
		if c.Postgres.DBName == "" {
			problems = append(problems, "DB_NAME is required")
		}
		if c.Postgres.MinConns > c.Postgres.MaxConns {
			problems = append(problems, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.App.Store))
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.Payment.WebhookSecret == "" {
		problems = append(problems, "PAYPAL_WEBHOOK_SECRET is required")
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		problems = append(problems, "KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		problems = append(problems, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment reports whether human-readable console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

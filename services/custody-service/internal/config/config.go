package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/quangdang46/DeFi-Wallet/shared/env"
	"github.com/quangdang46/DeFi-Wallet/shared/messaging"
	"github.com/quangdang46/DeFi-Wallet/shared/postgres"
	"github.com/quangdang46/DeFi-Wallet/shared/redis"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config contains configuration for Custody Service
type Config struct {
	HTTPAddr    string
	Environment string
	LogLevel    string
	Version     string

	Postgres      postgres.PostgresConfig
	Redis         redis.RedisConfig
	RabbitMQ      messaging.RabbitMQConfig
	RunMigrations bool

	JWTSecret string
	SentryDSN string

	ChainsFile  string
	RPCTimeout  time.Duration
	HealthCheck time.Duration

	ExplorerTimeout     time.Duration
	ExplorerMinInterval time.Duration

	WalletLockBackend string
	WalletLockTTL     time.Duration
	WalletLockWait    time.Duration

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	DBPoolInterval  time.Duration
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() *Config {
	env.Load()

	return &Config{
		HTTPAddr:    env.GetString("HTTP_ADDR", ":8080"),
		Environment: env.GetString("ENVIRONMENT", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		Version:     env.GetString("SERVICE_VERSION", "dev"),

		Postgres:      loadPostgresConfig(),
		Redis:         loadRedisConfig(),
		RabbitMQ:      loadRabbitMQConfig(),
		RunMigrations: env.GetBool("RUN_MIGRATIONS", true),

		JWTSecret: env.GetString("JWT_SECRET", ""),
		SentryDSN: env.GetString("SENTRY_DSN", ""),

		ChainsFile:  env.GetString("CHAINS_FILE", ""),
		RPCTimeout:  env.GetDuration("RPC_TIMEOUT", 30*time.Second),
		HealthCheck: env.GetDuration("CHAIN_HEALTH_INTERVAL", time.Minute),

		ExplorerTimeout:     env.GetDuration("EXPLORER_TIMEOUT", 10*time.Second),
		ExplorerMinInterval: env.GetDuration("EXPLORER_MIN_INTERVAL", 2*time.Second),

		WalletLockBackend: env.GetString("WALLET_LOCK_BACKEND", LockBackendMemory),
		WalletLockTTL:     env.GetDuration("WALLET_LOCK_TTL", 30*time.Second),
		WalletLockWait:    env.GetDuration("WALLET_LOCK_WAIT", 10*time.Second),

		RequestTimeout:  env.GetDuration("REQUEST_TIMEOUT", 60*time.Second),
		ShutdownTimeout: env.GetDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		DBPoolInterval:  env.GetDuration("DB_POOL_CHECK_INTERVAL", 30*time.Second),
	}
}

// loadPostgresConfig loads PostgreSQL configuration
func loadPostgresConfig() postgres.PostgresConfig {
	return postgres.PostgresConfig{
		PostgresHost:     env.GetString("POSTGRES_HOST", "localhost"),
		PostgresPort:     env.GetInt("POSTGRES_PORT", 5432),
		PostgresUser:     env.GetString("POSTGRES_USER", "postgres"),
		PostgresPassword: env.GetString("POSTGRES_PASSWORD", "password"),
		PostgresDatabase: env.GetString("POSTGRES_DATABASE", "custody"),
		PostgresSSLMode:  env.GetString("POSTGRES_SSLMODE", "disable"),
		MaxOpenConns:     env.GetInt("POSTGRES_MAX_OPEN_CONNS", 20),
		MaxIdleConns:     env.GetInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  env.GetDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration
func loadRedisConfig() redis.RedisConfig {
	return redis.RedisConfig{
		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetString("REDIS_PASSWORD", ""),
		RedisDB:       env.GetInt("REDIS_DB", 0),
	}
}

// loadRabbitMQConfig loads RabbitMQ configuration. An empty host disables events.
func loadRabbitMQConfig() messaging.RabbitMQConfig {
	return messaging.RabbitMQConfig{
		RabbitMQHost:     env.GetString("RABBITMQ_HOST", ""),
		RabbitMQPort:     env.GetInt("RABBITMQ_PORT", 5672),
		RabbitMQUser:     env.GetString("RABBITMQ_USER", "guest"),
		RabbitMQPassword: env.GetString("RABBITMQ_PASSWORD", "guest"),
		RabbitMQVHost:    env.GetString("RABBITMQ_VHOST", "/"),
	}
}

// Validate reports every problem at once
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is required"))
	}
	if c.Postgres.PostgresHost == "" {
		errs = append(errs, errors.New("POSTGRES_HOST is required"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.RPCTimeout <= 0 {
		errs = append(errs, errors.New("RPC_TIMEOUT must be positive"))
	}
	if c.ExplorerTimeout <= 0 {
		errs = append(errs, errors.New("EXPLORER_TIMEOUT must be positive"))
	}
	switch c.WalletLockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.RedisHost == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis wallet lock"))
		}
		if c.WalletLockTTL <= 0 {
			errs = append(errs, errors.New("WALLET_LOCK_TTL must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("WALLET_LOCK_BACKEND must be %q or %q, got %q",
			LockBackendMemory, LockBackendRedis, c.WalletLockBackend))
	}
	return errors.Join(errs...)
}

func (c *Config) EventsEnabled() bool {
	return c.RabbitMQ.RabbitMQHost != ""
}

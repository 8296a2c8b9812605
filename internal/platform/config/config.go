package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean; zero values mean "use the
// in-memory implementation" for optional backends.
type Config struct {
	Addr string

	// RulesPath and PoliciesPath point at the YAML rule set and retention
	// policy files loaded once at startup.
	RulesPath    string
	PoliciesPath string

	// PostgresURL enables the durable ledger and retention stores.
	PostgresURL string

	// Redis backs the ledger when set and Postgres is not.
	Redis RedisConfig

	// Kafka enables the violation event stream when brokers are set.
	Kafka KafkaConfig

	// EscalationMediumAt and EscalationCriticalAt are the incident-count
	// thresholds for escalation levels.
	EscalationMediumAt   int64
	EscalationCriticalAt int64

	// Cache TTLs per scrutiny tier. The critical tier never caches
	// regardless of these values.
	CacheTTLLow    time.Duration
	CacheTTLMedium time.Duration
	CacheTTLHigh   time.Duration

	// RecallLimit bounds retention-store recall per check.
	RecallLimit int

	// SweepInterval is the period of the background eviction sweeper.
	SweepInterval time.Duration
}

// RedisConfig holds connection settings for the optional Redis ledger store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the violation event stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults. Startup validation of rule and policy files happens in their
// loaders, not here.
func FromEnv() Config {
	return Config{
		Addr:                 envOr("GOVERNOR_ADDR", ":8080"),
		RulesPath:            envOr("GOVERNOR_RULES_PATH", "configs/rules.yaml"),
		PoliciesPath:         envOr("GOVERNOR_POLICIES_PATH", "configs/policies.yaml"),
		PostgresURL:          os.Getenv("GOVERNOR_POSTGRES_URL"),
		Redis:                redisFromEnv(),
		Kafka:                kafkaFromEnv(),
		EscalationMediumAt:   envInt64("GOVERNOR_ESCALATION_MEDIUM_AT", 5),
		EscalationCriticalAt: envInt64("GOVERNOR_ESCALATION_CRITICAL_AT", 11),
		CacheTTLLow:          envDuration("GOVERNOR_CACHE_TTL_LOW", 5*time.Minute),
		CacheTTLMedium:       envDuration("GOVERNOR_CACHE_TTL_MEDIUM", time.Minute),
		CacheTTLHigh:         envDuration("GOVERNOR_CACHE_TTL_HIGH", 10*time.Second),
		RecallLimit:          int(envInt64("GOVERNOR_RECALL_LIMIT", 5)),
		SweepInterval:        envDuration("GOVERNOR_SWEEP_INTERVAL", 10*time.Minute),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("GOVERNOR_REDIS_URL"),
		PoolSize:     int(envInt64("GOVERNOR_REDIS_POOL_SIZE", 10)),
		MinIdleConns: int(envInt64("GOVERNOR_REDIS_MIN_IDLE_CONNS", 2)),
		DialTimeout:  envDuration("GOVERNOR_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("GOVERNOR_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("GOVERNOR_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func kafkaFromEnv() KafkaConfig {
	brokers := os.Getenv("GOVERNOR_KAFKA_BROKERS")
	cfg := KafkaConfig{
		Topic: envOr("GOVERNOR_KAFKA_TOPIC", "governor.violations"),
	}
	if brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Brokers = append(cfg.Brokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

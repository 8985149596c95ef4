package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. Domain constants (score
// rewards, gating thresholds) live with their components; this is wiring.
type Server struct {
	Addr          string
	JWTSigningKey string

	// RootAdmin is the subject bootstrapped with the super-admin
	// capability. Empty means mint a fresh one at startup and log it.
	RootAdmin string

	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	Dispute DisputeConfig
}

// RedisConfig configures the optional trust-score cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// DisputeConfig carries the arbitration parameters operators tune per
// deployment.
type DisputeConfig struct {
	MinimumBond  int64
	PanelSize    int
	ReviewPeriod time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("CREDENCE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = strings.Split(v, ",")
	}
	auditTopic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "credence.audit"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		RootAdmin:     os.Getenv("CREDENCE_ROOT_ADMIN"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    brokers,
			AuditTopic: auditTopic,
		},
		Dispute: DisputeConfig{
			MinimumBond:  int64(envInt("DISPUTE_MINIMUM_BOND", 10)),
			PanelSize:    envInt("DISPUTE_PANEL_SIZE", 3),
			ReviewPeriod: envDuration("DISPUTE_REVIEW_PERIOD", 72*time.Hour),
		},
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

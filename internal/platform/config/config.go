// Package config reads process configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "eeia/pkg/platform/strings"
)

// Key store variants.
const (
	KeyStoreMulti  = "multi"
	KeyStoreSingle = "single"
)

// Config is the full process configuration.
type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string
	SeedFile  string

	Queue      QueueConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Security   SecurityConfig
	Admin      AdminConfig
	Redelivery RedeliveryConfig
	Breaker    BreakerConfig
}

// QueueConfig selects the offline queue backend.
type QueueConfig struct {
	Backend           string
	PostgresDSN       string
	NATSURL           string
	JetStreamReplicas int
}

// RedisConfig configures the Redis client used by the redis queue backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka audit sink when brokers are set.
type KafkaConfig struct {
	Brokers []string
}

// SecurityConfig drives the entry gate.
type SecurityConfig struct {
	KeyStore         string
	RequireSignature bool
	BlockThreshold   float64
	AuditThreshold   float64
	HeuristicScorer  bool
}

// AdminConfig protects admin routes. TokenHash, when set, is a bcrypt hash and
// takes precedence over Token.
type AdminConfig struct {
	Token     string
	TokenHash string
}

// RedeliveryConfig drives the background redelivery worker.
type RedeliveryConfig struct {
	Interval    time.Duration
	Batch       int
	Parallelism int
}

// BreakerConfig sets per-target circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Addr:      p.str("EEIA_ADDR", ":8080"),
		LogLevel:  p.str("EEIA_LOG_LEVEL", "info"),
		LogFormat: p.str("EEIA_LOG_FORMAT", "json"),
		SeedFile:  p.str("EEIA_SEED_FILE", ""),
		Queue: QueueConfig{
			Backend:           strings.ToLower(p.str("EEIA_QUEUE_BACKEND", "memory")),
			PostgresDSN:       p.str("EEIA_POSTGRES_DSN", ""),
			NATSURL:           p.str("EEIA_NATS_URL", ""),
			JetStreamReplicas: p.integer("EEIA_JETSTREAM_REPLICAS", 1),
		},
		Redis: RedisConfig{
			URL:          p.str("EEIA_REDIS_URL", ""),
			PoolSize:     p.integer("EEIA_REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("EEIA_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("EEIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("EEIA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("EEIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: p.list("EEIA_KAFKA_BROKERS"),
		},
		Security: SecurityConfig{
			KeyStore:         strings.ToLower(p.str("EEIA_KEYSTORE", KeyStoreMulti)),
			RequireSignature: p.boolean("EEIA_REQUIRE_SIGNATURE", false),
			BlockThreshold:   p.float("EEIA_RISK_BLOCK_THRESHOLD", 0.9),
			AuditThreshold:   p.float("EEIA_RISK_AUDIT_THRESHOLD", 0.7),
			HeuristicScorer:  p.boolean("EEIA_HEURISTIC_SCORER", false),
		},
		Admin: AdminConfig{
			Token:     p.str("EEIA_ADMIN_TOKEN", ""),
			TokenHash: p.str("EEIA_ADMIN_TOKEN_HASH", ""),
		},
		Redelivery: RedeliveryConfig{
			Interval:    p.duration("EEIA_REDELIVERY_INTERVAL", 30*time.Second),
			Batch:       p.integer("EEIA_REDELIVERY_BATCH", 100),
			Parallelism: p.integer("EEIA_REDELIVERY_PARALLELISM", 8),
		},
		Breaker: BreakerConfig{
			FailureThreshold: p.integer("EEIA_BREAKER_FAILURES", 5),
			SuccessThreshold: p.integer("EEIA_BREAKER_SUCCESSES", 3),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Queue.Backend {
	case "memory":
	case "postgres":
		if c.Queue.PostgresDSN == "" {
			return fmt.Errorf("EEIA_POSTGRES_DSN is required for the postgres queue backend")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("EEIA_REDIS_URL is required for the redis queue backend")
		}
	case "jetstream":
		if c.Queue.NATSURL == "" {
			return fmt.Errorf("EEIA_NATS_URL is required for the jetstream queue backend")
		}
	default:
		return fmt.Errorf("unknown EEIA_QUEUE_BACKEND %q", c.Queue.Backend)
	}
	if c.Security.KeyStore != KeyStoreMulti && c.Security.KeyStore != KeyStoreSingle {
		return fmt.Errorf("EEIA_KEYSTORE must be %q or %q", KeyStoreMulti, KeyStoreSingle)
	}
	s := c.Security
	if s.BlockThreshold < 0 || s.BlockThreshold > 1 || s.AuditThreshold < 0 || s.AuditThreshold > 1 {
		return fmt.Errorf("risk thresholds must be within [0,1]")
	}
	if s.AuditThreshold > s.BlockThreshold {
		return fmt.Errorf("EEIA_RISK_AUDIT_THRESHOLD must not exceed EEIA_RISK_BLOCK_THRESHOLD")
	}
	return nil
}

// parser records the first malformed variable.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	return platformstrings.SplitList(v, ",")
}

// Package config loads Bindu's runtime configuration from the environment.
// Secret loading itself (Infisical, Vault, cloud KMS, ...) is a collaborator's
// concern; this package only reads whatever value ends up in the process
// environment on the well-known keys below.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"bindu/internal/logger"
)

// StorageBackend selects the Storage implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// SchedulerBackend selects the Scheduler implementation.
type SchedulerBackend string

const (
	SchedulerMemory SchedulerBackend = "memory"
	SchedulerRedis  SchedulerBackend = "redis"
)

// Config holds everything needed to construct a running Bindu instance.
type Config struct {
	ListenAddr string

	StorageBackend  StorageBackend
	PostgresDSN     string
	SQLitePath      string
	PostgresPool    PoolConfig
	SchedulerBackend SchedulerBackend
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SchedulerQueueDepth int // 0 = unbounded (only meaningful for the in-memory backend)

	WorkerCount       int
	WorkerPollTimeout time.Duration
	HandlerRetryMax   int
	HandlerRetryKinds []string

	PushEnabled    bool
	PushMaxRetries int
	PushTimeout    time.Duration
	KafkaBrokers   []string // optional: republish task events/webhook callbacks

	MessageHistoryEnabled bool

	// DID is this deployment's own decentralized identifier, used both for
	// /did/resolve and for deriving the Postgres schema name (§3). Empty
	// disables schema isolation (all tasks share the "public" schema).
	DID string

	// AgentName/AgentDescription/AgentVersion feed the discovery Agent Card.
	AgentName        string
	AgentDescription string
	AgentVersion     string

	RateLimit RateLimitConfig

	ConnectRetryAttempts int
	ConnectRetryBaseDelay time.Duration
}

// PoolConfig mirrors the bounded connection pool knobs described in §4.1.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	OpTimeout       time.Duration
}

// RateLimitConfig configures the per-endpoint HTTP rate limiting in §6.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	BurstSize         int
}

// Load builds a Config from environment variables, applying defaults for
// anything unset. Every key is prefixed BINDU_ to avoid collisions with a
// host application's own environment.
func Load() Config {
	log := logger.WithComponent("config")

	cfg := Config{
		ListenAddr: getenv("BINDU_LISTEN_ADDR", ":8090"),

		StorageBackend: StorageBackend(getenv("BINDU_STORAGE_BACKEND", string(StorageMemory))),
		PostgresDSN:    getenv("BINDU_POSTGRES_DSN", ""),
		SQLitePath:     getenv("BINDU_SQLITE_PATH", "bindu.db"),
		PostgresPool: PoolConfig{
			MaxOpenConns:    getenvInt("BINDU_PG_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("BINDU_PG_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getenvDuration("BINDU_PG_CONN_MAX_LIFETIME", 15*time.Minute),
			ConnMaxIdleTime: getenvDuration("BINDU_PG_CONN_MAX_IDLE_TIME", 5*time.Minute),
			OpTimeout:       getenvDuration("BINDU_PG_OP_TIMEOUT", 5*time.Second),
		},

		SchedulerBackend:    SchedulerBackend(getenv("BINDU_SCHEDULER_BACKEND", string(SchedulerMemory))),
		RedisAddr:           getenv("BINDU_REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getenv("BINDU_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("BINDU_REDIS_DB", 0),
		SchedulerQueueDepth: getenvInt("BINDU_SCHEDULER_QUEUE_DEPTH", 1024),

		WorkerCount:       getenvInt("BINDU_WORKER_COUNT", 4),
		WorkerPollTimeout: getenvDuration("BINDU_WORKER_POLL_TIMEOUT", 2*time.Second),
		HandlerRetryMax:   getenvInt("BINDU_HANDLER_RETRY_MAX", 2),
		HandlerRetryKinds: splitCSV(getenv("BINDU_HANDLER_RETRY_KINDS", "transient")),

		PushEnabled:    getenvBool("BINDU_PUSH_ENABLED", true),
		PushMaxRetries: getenvInt("BINDU_PUSH_MAX_RETRIES", 3),
		PushTimeout:    getenvDuration("BINDU_PUSH_TIMEOUT", 10*time.Second),
		KafkaBrokers:   splitCSV(getenv("BINDU_KAFKA_BROKERS", "")),

		MessageHistoryEnabled: getenvBool("BINDU_CONTEXT_MESSAGE_HISTORY", true),

		DID: getenv("BINDU_DID", ""),

		AgentName:        getenv("BINDU_AGENT_NAME", "bindu-agent"),
		AgentDescription: getenv("BINDU_AGENT_DESCRIPTION", "A bindu-hosted agent"),
		AgentVersion:     getenv("BINDU_AGENT_VERSION", "0.1.0"),

		RateLimit: RateLimitConfig{
			RequestsPerWindow: getenvInt("BINDU_RATE_LIMIT_RPS", 200),
			Window:            getenvDuration("BINDU_RATE_LIMIT_WINDOW", time.Minute),
			BurstSize:         getenvInt("BINDU_RATE_LIMIT_BURST", 20),
		},

		ConnectRetryAttempts:  getenvInt("BINDU_CONNECT_RETRY_ATTEMPTS", 5),
		ConnectRetryBaseDelay: getenvDuration("BINDU_CONNECT_RETRY_BASE_DELAY", 500*time.Millisecond),
	}

	if cfg.StorageBackend == StoragePostgres && cfg.PostgresDSN == "" {
		log.Warn("storage backend is postgres but BINDU_POSTGRES_DSN is empty")
	}

	return cfg
}

// Snapshot returns a loggable, secret-free view of the configuration.
func (c Config) Snapshot() map[string]any {
	return map[string]any{
		"listenAddr":       c.ListenAddr,
		"storageBackend":   c.StorageBackend,
		"schedulerBackend": c.SchedulerBackend,
		"workerCount":      c.WorkerCount,
		"pushEnabled":      c.PushEnabled,
		"did":              c.DID,
	}
}

func getenv(k, fallback string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getenvBool(k string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

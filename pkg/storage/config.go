package storage

import "time"

// Backend types
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
)

// Cache backends
const (
	CacheBackendRedis = "redis"
	CacheBackendLRU   = "lru"
)

// Config for storage backend
type Config struct {
	Type string // "memory" or "postgres"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	ReplicaReads        bool // serve listing queries from replicas
	RunMigrations       bool

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheBackend string // "redis" or "lru"
	CacheTTL     time.Duration
	CacheSize    int // entries, lru backend only
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  5 * time.Second,
		RunMigrations:    true,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     false,
		CacheBackend:     CacheBackendLRU,
		CacheTTL:         5 * time.Second,
		CacheSize:        10000,
	}
}

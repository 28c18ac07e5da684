package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Authorization configuration
	Authz AuthzConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// ActorHeader carries the upstream-verified actor id
	ActorHeader string

	// Per-actor rate limiting of the /v1 API. Shared through Redis when a
	// Redis URL is configured.
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// AuthzConfig holds authorization and audit settings
type AuthzConfig struct {
	// CatalogFile is a YAML role catalog. Empty uses the built-in catalog.
	CatalogFile string

	// RequireAudit fails allowed decisions whose activity record cannot be written
	RequireAudit bool

	// AuditFileDir additionally mirrors activity records to rotated NDJSON files in this directory
	AuditFileDir      string
	AuditFileMaxSize  int64
	AuditFileMaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool    // Use insecure gRPC connection
	OTelSampleRatio    float64 // fraction of root traces kept, 1 keeps all
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Authz:         loadAuthzConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEKEEPER_HOST", "0.0.0.0"),
		Port:            getEnv("GATEKEEPER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEKEEPER_HEALTH_PORT", "9090"),
		ActorHeader:     getEnv("GATEKEEPER_ACTOR_HEADER", "X-Actor-ID"),

		RateLimitEnabled:  getEnvBool("GATEKEEPER_RATE_LIMIT_ENABLED", false),
		RateLimitRequests: getEnvInt("GATEKEEPER_RATE_LIMIT_REQUESTS", 1000),
		RateLimitWindow:   getEnvDuration("GATEKEEPER_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBurst:    getEnvInt("GATEKEEPER_RATE_LIMIT_BURST", 50),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Storage type
	if storageType := getEnv("GATEKEEPER_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// PostgreSQL config
	if pgURL := getEnv("GATEKEEPER_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnvList("GATEKEEPER_POSTGRES_REPLICA_URLS"); len(replicaURLs) > 0 {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("GATEKEEPER_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("GATEKEEPER_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	cfg.ReplicaReads = getEnvBool("GATEKEEPER_POSTGRES_REPLICA_READS", cfg.ReplicaReads)
	cfg.RunMigrations = getEnvBool("GATEKEEPER_RUN_MIGRATIONS", cfg.RunMigrations)

	// Redis config
	if redisURL := getEnv("GATEKEEPER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATEKEEPER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATEKEEPER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	cfg.CacheEnabled = getEnvBool("GATEKEEPER_CACHE_ENABLED", cfg.CacheEnabled)
	if backend := getEnv("GATEKEEPER_CACHE_BACKEND", ""); backend != "" {
		cfg.CacheBackend = strings.ToLower(backend)
	}
	if ttl := getEnvDuration("GATEKEEPER_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}
	if size := getEnvInt("GATEKEEPER_CACHE_SIZE", 0); size > 0 {
		cfg.CacheSize = size
	}

	return cfg
}

// loadAuthzConfig loads authorization configuration from environment
func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		CatalogFile:       getEnv("GATEKEEPER_CATALOG_FILE", ""),
		RequireAudit:      getEnvBool("GATEKEEPER_REQUIRE_AUDIT", true),
		AuditFileDir:      getEnv("GATEKEEPER_AUDIT_FILE_DIR", ""),
		AuditFileMaxSize:  getEnvInt64("GATEKEEPER_AUDIT_FILE_MAX_SIZE", 100*1024*1024),
		AuditFileMaxFiles: getEnvInt("GATEKEEPER_AUDIT_FILE_MAX_FILES", 10),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("GATEKEEPER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GATEKEEPER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEKEEPER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEKEEPER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEKEEPER_OTEL_SERVICE_NAME", "gatekeeper"),
		OTelServiceVersion: getEnv("GATEKEEPER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEKEEPER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GATEKEEPER_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.ActorHeader == "" {
		return fmt.Errorf("actor header is required")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitRequests <= 0 || c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		if c.Server.RateLimitBurst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case storage.TypeMemory:
	case storage.TypePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.Storage.ReplicaReads && len(c.Storage.PostgresReplicaURLs) == 0 {
			return fmt.Errorf("replica URLs are required when replica reads are enabled")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	// Validate cache config
	if c.Storage.CacheEnabled {
		switch c.Storage.CacheBackend {
		case storage.CacheBackendLRU:
			if c.Storage.CacheSize <= 0 {
				return fmt.Errorf("cache size must be positive for the lru cache")
			}
		case storage.CacheBackendRedis:
			if c.Storage.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis cache")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s (must be lru or redis)", c.Storage.CacheBackend)
		}
		if c.Storage.CacheTTL <= 0 {
			return fmt.Errorf("cache TTL must be positive when the cache is enabled")
		}
	}

	// Validate audit file config
	if c.Authz.AuditFileDir != "" {
		if c.Authz.AuditFileMaxSize <= 0 {
			return fmt.Errorf("audit file max size must be positive")
		}
		if c.Authz.AuditFileMaxFiles <= 0 {
			return fmt.Errorf("audit file max files must be positive")
		}
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r <= 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be in (0, 1], got %v", r)
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a trimmed list
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

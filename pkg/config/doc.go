// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings. Every variable is optional.
//
// # Configuration Structure
//
// Server settings:
//
//	GATEKEEPER_HOST="0.0.0.0"
//	GATEKEEPER_PORT="8080"
//	GATEKEEPER_HEALTH_PORT="9090"
//	GATEKEEPER_READ_TIMEOUT="15s"
//	GATEKEEPER_ACTOR_HEADER="X-Actor-ID"
//
// Storage settings:
//
//	GATEKEEPER_STORAGE_TYPE="postgres"  # memory, postgres
//	GATEKEEPER_POSTGRES_URL="postgres://localhost/gatekeeper"
//	GATEKEEPER_POSTGRES_REPLICA_URLS="postgres://replica-1/gatekeeper,postgres://replica-2/gatekeeper"
//	GATEKEEPER_POSTGRES_REPLICA_READS="true"
//	GATEKEEPER_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	GATEKEEPER_CACHE_ENABLED="true"
//	GATEKEEPER_CACHE_BACKEND="redis"  # lru, redis
//	GATEKEEPER_CACHE_TTL="5s"
//	GATEKEEPER_REDIS_URL="redis://localhost:6379"
//
// Authorization settings:
//
//	GATEKEEPER_CATALOG_FILE="/etc/gatekeeper/roles.yaml"
//	GATEKEEPER_REQUIRE_AUDIT="true"
//	GATEKEEPER_AUDIT_FILE_DIR="/var/log/gatekeeper/activity"
//
// Observability settings:
//
//	GATEKEEPER_LOG_LEVEL="info"  # debug, info, warn, error
//	GATEKEEPER_METRICS_ENABLED="true"
//	GATEKEEPER_OTEL_ENABLED="true"
//	GATEKEEPER_OTEL_ENDPOINT="otel-collector:4317"
//	GATEKEEPER_OTEL_SAMPLE_RATIO="0.1"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config

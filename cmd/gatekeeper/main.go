package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/api"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/authz"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/storage/postgres"
)

var (
	version         = "dev"
	showVersion     = flag.Bool("version", false, "Print the version and exit")
	checkConfig     = flag.Bool("check-config", false, "Validate configuration and the permission catalog, then exit")
	dbStatsSchedule = flag.String("db-stats-schedule", "@every 15s", "Cron schedule for recording database pool statistics")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	catalog, err := loadCatalog(cfg.Authz.CatalogFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load permission catalog")
	}
	if *checkConfig {
		logger.Info("Configuration and permission catalog are valid")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	deps, err := openStore(ctx, cfg.Storage, registry, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	writer, err := newAuditWriter(deps.store, cfg.Authz)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize activity log")
	}

	authzOpts := authz.Options{
		Logger:       logger,
		RequireAudit: cfg.Authz.RequireAudit,
	}
	if metrics != nil {
		authzOpts.Metrics = metrics
	}
	authorizer := authz.NewAuthorizer(deps.store, catalog, writer, authzOpts)

	var limiter middleware.Limiter
	if cfg.Server.RateLimitEnabled {
		limitConfig := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitRequests,
			WindowDuration:    cfg.Server.RateLimitWindow,
			BurstSize:         cfg.Server.RateLimitBurst,
		}
		if deps.redis != nil {
			limiter = middleware.NewDistributedRateLimiter(deps.redis.GetClient(), limitConfig, "")
			logger.Info("Using distributed rate limiter")
		} else {
			local := middleware.NewRateLimiter(limitConfig)
			local.StartCleanup(ctx, logger)
			limiter = local
			logger.Info("Using in-process rate limiter")
		}
	}

	server := api.NewServer(authorizer, api.Options{
		Logger:      logger,
		Metrics:     metrics,
		ActorHeader: cfg.Server.ActorHeader,
		RateLimiter: limiter,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes bypass the
	// API middleware chain and rate limits
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(deps.db, deps.redisClient(), deps.store, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthRouter, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := cron.New()
	if deps.db != nil && metrics != nil {
		_, err = scheduler.AddFunc(*dbStatsSchedule, func() {
			metrics.RecordDBStats(deps.db)
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to schedule database statistics")
		}
	}
	scheduler.Start()

	// Released in reverse: health server, scheduler, activity log, store, telemetry
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("telemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc("store", func(ctx context.Context) error {
		return deps.close()
	})
	shutdown.RegisterShutdownFunc("activity log", func(ctx context.Context) error {
		return writer.Close()
	})
	shutdown.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)

	go serve(healthServer, logger.WithField("server", "health"), cancel)
	go serve(httpServer, logger.WithField("server", "api"), cancel)

	logger.WithFields(logrus.Fields{
		"addr":        httpServer.Addr,
		"health_addr": healthServer.Addr,
		"storage":     cfg.Storage.Type,
		"cache":       cfg.Storage.CacheEnabled,
		"version":     version,
	}).Info("Gatekeeper started")

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
		os.Exit(1)
	}
	logger.Info("Gatekeeper stopped")
}

// serve runs server until it is shut down. Any other exit triggers shutdown
// of the whole process through stop.
func serve(server *http.Server, logger logrus.FieldLogger, stop context.CancelFunc) {
	defer observability.RecoverPanicWithCallback(logger, "http server", stop)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("Server failed")
		stop()
	}
}

func loadCatalog(path string) (*rbac.Catalog, error) {
	if path == "" {
		return rbac.DefaultCatalog(), nil
	}
	return rbac.LoadCatalogFile(path)
}

// storeDeps holds the store and the connections behind it. db and redis
// are nil when the corresponding backend is not configured.
type storeDeps struct {
	store storage.Store
	db    *sql.DB
	redis *postgres.RedisClient

	// cacheOwnsRedis is set when the cached store closes redis itself
	cacheOwnsRedis bool
}

func (d *storeDeps) redisClient() *redis.Client {
	if d.redis == nil {
		return nil
	}
	return d.redis.GetClient()
}

func openStore(ctx context.Context, cfg storage.Config, registry prometheus.Registerer, logger logrus.FieldLogger) (*storeDeps, error) {
	deps := &storeDeps{}

	switch cfg.Type {
	case storage.TypePostgres:
		pg, err := postgres.Open(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		pg.StartReplicaHealthCheck(ctx, 30*time.Second)
		deps.store = pg
		deps.db = pg.DB()
		logger.WithField("replicas", len(cfg.PostgresReplicaURLs)).Info("PostgreSQL store initialized")
	default:
		deps.store = storage.NewMemoryStore()
		logger.Warn("Using in-memory store; data is lost on restart")
	}

	if cfg.RedisURL != "" {
		client, err := postgres.NewRedisClient(cfg)
		if err != nil {
			deps.store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.redis = client
	}

	if !cfg.CacheEnabled {
		return deps, nil
	}

	var backend postgres.CacheBackend
	if cfg.CacheBackend == storage.CacheBackendRedis {
		backend = deps.redis
	} else {
		backend = postgres.NewLRUBackend(cfg.CacheSize, cfg.CacheTTL)
	}

	cached, err := postgres.NewCachedStore(deps.store, backend, postgres.CacheOptions{
		TTL:        cfg.CacheTTL,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	deps.store = cached
	deps.cacheOwnsRedis = cfg.CacheBackend == storage.CacheBackendRedis
	logger.WithFields(logrus.Fields{
		"backend": cfg.CacheBackend,
		"ttl":     cfg.CacheTTL,
	}).Info("Store cache enabled")

	return deps, nil
}

func (d *storeDeps) close() error {
	var errs []error
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if d.redis != nil && !d.cacheOwnsRedis {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newAuditWriter records activity in the store and, when a directory is
// configured, mirrors it to rotated files
func newAuditWriter(store storage.Store, cfg config.AuthzConfig) (audit.Writer, error) {
	primary := storage.NewActivityWriter(store)
	if cfg.AuditFileDir == "" {
		return primary, nil
	}

	files, err := audit.NewFileWriter(audit.FileWriterConfig{
		BasePath: cfg.AuditFileDir,
		Rotate:   true,
		MaxSize:  cfg.AuditFileMaxSize,
		MaxFiles: cfg.AuditFileMaxFiles,
	})
	if err != nil {
		return nil, err
	}
	return audit.NewMultiWriter(primary, files), nil
}

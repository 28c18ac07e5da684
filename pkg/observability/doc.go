// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for the gatekeeper service.
//
// # Logging
//
// Loggers are logrus loggers with the JSON formatter:
//
//	logger := observability.NewLogger("info", os.Stdout)
//	observability.FromContext(ctx).WithField("tenant_id", id).Info("resolved")
//
// FromContext annotates the context logger with the request id, actor id and
// trace identifiers.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision("denied", "role_denied", elapsed)
//
// Metrics implements the authz decision recorder. HTTPMetricsMiddleware labels
// requests by mux route template.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, store, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The store and database are required for readiness; Redis only degrades it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "gatekeeper",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability

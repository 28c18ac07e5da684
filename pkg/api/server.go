package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatekeeper/pkg/authz"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/middleware"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// maxBodyBytes bounds decision request bodies
const maxBodyBytes = 1 << 20

// Authorizer is the decision surface the API exposes. *authz.Authorizer
// implements it.
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Decision, error)
	CanAccessTenant(ctx context.Context, actorID, targetTenantID string) (bool, error)
	AccessibleTenants(ctx context.Context, actorID string) ([]string, error)
	ChangeUserRole(ctx context.Context, managerID, targetUserID string, newRole rbac.RoleCode) (authz.Decision, error)
}

// Options configures optional server behavior
type Options struct {
	Logger logrus.FieldLogger

	// Metrics enables the HTTP request metrics middleware
	Metrics *observability.Metrics

	// ActorHeader names the header carrying the verified manager id for role changes
	ActorHeader string

	// RateLimiter limits /v1 requests when set
	RateLimiter middleware.Limiter
}

// Server represents the decision API server
type Server struct {
	router   *mux.Router
	handlers *AuthzHandlers
	logger   logrus.FieldLogger
	opts     Options
}

// NewServer creates a new API server
func NewServer(authorizer Authorizer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.ActorHeader == "" {
		opts.ActorHeader = middleware.DefaultActorHeader
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewAuthzHandlers(authorizer, opts.ActorHeader),
		logger:   opts.Logger,
		opts:     opts,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	if s.opts.RateLimiter != nil {
		v1.Use(middleware.NewRateLimitMiddleware(s.opts.RateLimiter, s.logger).Handler)
	}
	s.handlers.RegisterRoutes(v1)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in request id, logging, panic recovery
// and body size middleware, traced with OpenTelemetry
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		httputil.ContentTypeMiddleware,
	)
	return otelhttp.NewHandler(chain(s), "gatekeeper.api")
}

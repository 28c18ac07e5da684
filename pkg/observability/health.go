package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// readinessTimeout bounds a whole /readyz evaluation
const readinessTimeout = 5 * time.Second

// errPoolExhausted marks a database that answers but has no idle connections
var errPoolExhausted = errors.New("connection pool exhausted")

// Checker is a dependency that can report its own health, such as a storage backend
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus is the /readyz body
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of one dependency check
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// depCheck checks one dependency. A failing required check makes the service
// unhealthy; a failing optional one only degrades it.
type depCheck struct {
	name     string
	required bool
	check    func(context.Context) error
}

// HealthChecker serves liveness and readiness for the decision service
type HealthChecker struct {
	version string
	checks  []depCheck
}

// NewHealthChecker builds checks for whichever dependencies are non-nil. The
// store and database are required; redis only backs the cache and the rate
// limiter.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, store Checker, version string) *HealthChecker {
	h := &HealthChecker{version: version}
	if store != nil {
		h.checks = append(h.checks, depCheck{name: "store", required: true, check: store.HealthCheck})
	}
	if db != nil {
		h.checks = append(h.checks, depCheck{name: "database", required: true, check: databaseCheck(db)})
	}
	if rdb != nil {
		h.checks = append(h.checks, depCheck{name: "redis", check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return h
}

func databaseCheck(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		if stats := db.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return errPoolExhausted
		}
		return nil
	}
}

// Check runs every check concurrently and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.checks)),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range h.checks {
		p := p
		g.Go(func() error {
			dep := runCheck(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[p.name] = dep
			switch {
			case dep.Status == StatusHealthy:
			case p.required:
				status.Status = worse(status.Status, dep.Status)
			default:
				status.Status = worse(status.Status, StatusDegraded)
			}
			return nil
		})
	}
	_ = g.Wait()

	return status
}

func runCheck(ctx context.Context, p depCheck) DependencyStatus {
	start := time.Now()
	err := p.check(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: start,
	}
	switch {
	case errors.Is(err, errPoolExhausted):
		dep.Status = StatusDegraded
		dep.Message = err.Error()
	case err != nil:
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

func worse(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Liveness reports 200 whenever the process can serve HTTP
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// Readiness reports 503 only when a required dependency is down. A degraded
// service still takes traffic.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes mounts /healthz and /readyz
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}

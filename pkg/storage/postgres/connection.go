package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultCheckInterval  = 30 * time.Second
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// replica is a read pool that the replica checker takes in and out of rotation
type replica struct {
	index int
	db    *sql.DB
	up    atomic.Bool
}

// ConnectionManager owns the primary pool and the read replica pools. Reads
// rotate over replicas currently marked up and fall back to the primary.
// A replica that fails a ping is kept open and re-admitted once it answers.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*replica
	next     atomic.Uint32
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewConnectionManager opens the primary, which must answer a ping, and
// every replica. Replicas that cannot be reached start out of rotation.
func NewConnectionManager(config ConnectionConfig, logger logrus.FieldLogger) (*ConnectionManager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Timeout == 0 {
		config.Timeout = defaultConnectTimeout
	}

	primary, err := openPool(config, config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	cm := newConnectionManager(primary, nil, config.Timeout, logger)
	if err := cm.ping(context.Background(), primary); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	// Replicas get half the pool; they only serve tenant listings
	replicaConns := max(config.MaxConns/2, 2)
	for i, url := range config.ReplicaURLs {
		db, err := openPool(config, url, replicaConns)
		if err != nil {
			cm.logger.WithError(err).WithField("replica", i).Warn("Skipping replica with invalid DSN")
			continue
		}
		cm.addReplica(db)
	}
	cm.checkReplicas(context.Background())

	cm.logger.WithFields(logrus.Fields{
		"replicas":    len(cm.replicas),
		"replicas_up": cm.replicasUp(),
	}).Info("Connection manager initialized")
	return cm, nil
}

func newConnectionManager(primary *sql.DB, replicas []*sql.DB, timeout time.Duration, logger logrus.FieldLogger) *ConnectionManager {
	cm := &ConnectionManager{
		primary: primary,
		timeout: timeout,
		logger:  logger.WithField("component", "postgres"),
	}
	for _, db := range replicas {
		cm.addReplica(db)
	}
	return cm
}

func (cm *ConnectionManager) addReplica(db *sql.DB) {
	cm.replicas = append(cm.replicas, &replica{index: len(cm.replicas), db: db})
}

func openPool(config ConnectionConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
	return db, nil
}

func (cm *ConnectionManager) ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Primary returns the primary database connection
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns the next replica in rotation, or the primary when none is up
func (cm *ConnectionManager) Replica() *sql.DB {
	n := len(cm.replicas)
	if n == 0 {
		return cm.primary
	}
	start := int(cm.next.Add(1) % uint32(n))
	for i := 0; i < n; i++ {
		if r := cm.replicas[(start+i)%n]; r.up.Load() {
			return r.db
		}
	}
	return cm.primary
}

func (cm *ConnectionManager) replicasUp() int {
	up := 0
	for _, r := range cm.replicas {
		if r.up.Load() {
			up++
		}
	}
	return up
}

// checkReplicas pings every replica and updates its rotation state, logging
// transitions only
func (cm *ConnectionManager) checkReplicas(ctx context.Context) {
	for _, r := range cm.replicas {
		err := cm.ping(ctx, r.db)
		was := r.up.Swap(err == nil)
		switch {
		case err != nil && was:
			cm.logger.WithError(err).WithField("replica", r.index).Warn("Replica out of rotation")
		case err == nil && !was:
			cm.logger.WithField("replica", r.index).Info("Replica in rotation")
		}
	}
}

// HealthCheck fails when the primary is down. Replicas going down only cost
// read spreading, so they are reported through logs and not here.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}
	return nil
}

// StartHealthCheckRoutine re-pings replicas every interval until ctx is done
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if len(cm.replicas) == 0 {
		return
	}
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	go func() {
		defer observability.RecoverPanic(cm.logger, "replica checker")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.checkReplicas(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes every pool
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close: %w", err))
	}
	for _, r := range cm.replicas {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close: %w", r.index, err))
		}
	}
	return errors.Join(errs...)
}

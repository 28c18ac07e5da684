package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

const keyPrefix = "gatekeeper:"

// CacheBackend stores serialized lookups
type CacheBackend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) error
}

// LRUBackend is an in-process CacheBackend with a fixed entry TTL
type LRUBackend struct {
	cache *lru.LRU[string, []byte]
}

// NewLRUBackend creates an in-process backend holding up to size entries for ttl
func NewLRUBackend(size int, ttl time.Duration) *LRUBackend {
	if size < 10 {
		size = 10
	}
	return &LRUBackend{cache: lru.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns a cached value
func (b *LRUBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := b.cache.Get(key)
	return v, ok, nil
}

// Set stores a value. The per-call ttl is ignored; entries use the backend TTL.
func (b *LRUBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.cache.Add(key, value)
	return nil
}

// Del removes keys
func (b *LRUBackend) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		b.cache.Remove(k)
	}
	return nil
}

// DelPrefix removes every key starting with prefix
func (b *LRUBackend) DelPrefix(ctx context.Context, prefix string) error {
	for _, k := range b.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			b.cache.Remove(k)
		}
	}
	return nil
}

// CacheOptions configures a CachedStore
type CacheOptions struct {
	TTL        time.Duration
	Logger     logrus.FieldLogger
	Registerer prometheus.Registerer
}

// CacheStats holds cache hit and miss counts
type CacheStats struct {
	Hits   int64
	Misses int64
}

// CachedStore caches user, tenant and relationship lookups of an underlying
// store. Every write made through it invalidates the affected keys.
type CachedStore struct {
	storage.Store

	backend CacheBackend
	ttl     time.Duration
	group   singleflight.Group
	gen     atomic.Uint64 // bumped by every write before it invalidates
	logger  logrus.FieldLogger

	hits     atomic.Int64
	misses   atomic.Int64
	requests *prometheus.CounterVec
}

// NewCachedStore wraps inner with backend
func NewCachedStore(inner storage.Store, backend CacheBackend, opts CacheOptions) (*CachedStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}

	c := &CachedStore{
		Store:   inner,
		backend: backend,
		ttl:     opts.TTL,
		logger:  opts.Logger.WithField("component", "cache"),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_cache_requests_total",
				Help: "Total number of cached store lookups",
			},
			[]string{"kind", "result"},
		),
	}

	if opts.Registerer != nil {
		if err := opts.Registerer.Register(c.requests); err != nil {
			return nil, fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}

	return c, nil
}

// Stats returns hit and miss counts
func (c *CachedStore) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *CachedStore) record(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.requests.WithLabelValues(kind, result).Inc()
}

// loadTimeout bounds a shared load, which no single caller can cancel
const loadTimeout = 10 * time.Second

// cachedLookup serves key from the backend or loads it once for all
// concurrent callers of the same generation. Errors are never cached.
//
// A load that overlaps a write may have read the old row. Writes bump the
// generation before invalidating, so such a load neither stores its result
// nor is joined by callers arriving after the write.
func cachedLookup[T any](ctx context.Context, c *CachedStore, kind, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			c.record(kind, true)
			return v, nil
		}
		_ = c.backend.Del(ctx, key)
	}
	c.record(kind, false)

	gen := c.gen.Load()
	flight := c.group.DoChan(fmt.Sprintf("%s@%d", key, gen), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(loadCtx, key, gen, v)
		return v, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// store caches v unless a write has happened since gen was read
func (c *CachedStore) store(ctx context.Context, key string, gen uint64, v interface{}) {
	if c.gen.Load() != gen {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
		return
	}
	// A write that landed between the check and the Set may have
	// invalidated before we stored
	if c.gen.Load() != gen {
		_ = c.backend.Del(ctx, key)
	}
}

func userKey(id string) string       { return keyPrefix + "user:" + id }
func tenantKey(id string) string     { return keyPrefix + "tenant:" + id }
func relationsKey(f string) string   { return keyPrefix + "rels:" + f }
func relationKey(f, c string) string { return keyPrefix + "rel:" + f + ":" + c }

const tenantListKey = keyPrefix + "tenants"

// GetUser returns a cached user
func (c *CachedStore) GetUser(ctx context.Context, id string) (*users.User, error) {
	return cachedLookup(ctx, c, "user", userKey(id), func(ctx context.Context) (*users.User, error) {
		return c.Store.GetUser(ctx, id)
	})
}

// GetTenant returns a cached tenant
func (c *CachedStore) GetTenant(ctx context.Context, id string) (*tenants.Tenant, error) {
	return cachedLookup(ctx, c, "tenant", tenantKey(id), func(ctx context.Context) (*tenants.Tenant, error) {
		return c.Store.GetTenant(ctx, id)
	})
}

// FindActiveFranchiseClient returns a cached relationship lookup. The absence
// of a relationship is cached too.
func (c *CachedStore) FindActiveFranchiseClient(ctx context.Context, franchiseTenantID, clientTenantID string) (*tenants.FranchiseClient, error) {
	return cachedLookup(ctx, c, "relationship", relationKey(franchiseTenantID, clientTenantID), func(ctx context.Context) (*tenants.FranchiseClient, error) {
		return c.Store.FindActiveFranchiseClient(ctx, franchiseTenantID, clientTenantID)
	})
}

// ListActiveFranchiseClients returns a cached relationship list
func (c *CachedStore) ListActiveFranchiseClients(ctx context.Context, franchiseTenantID string) ([]tenants.FranchiseClient, error) {
	return cachedLookup(ctx, c, "relationships", relationsKey(franchiseTenantID), func(ctx context.Context) ([]tenants.FranchiseClient, error) {
		return c.Store.ListActiveFranchiseClients(ctx, franchiseTenantID)
	})
}

// ListTenantIDs returns the cached tenant id list
func (c *CachedStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	return cachedLookup(ctx, c, "tenants", tenantListKey, func(ctx context.Context) ([]string, error) {
		return c.Store.ListTenantIDs(ctx)
	})
}

// invalidate bumps the generation and drops keys after a successful write. Failures are logged; the
// entries expire after the TTL regardless.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	c.gen.Add(1)
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.logger.WithError(err).WithField("keys", keys).Error("cache invalidation failed")
	}
}

// CreateTenant creates a tenant and invalidates the tenant list
func (c *CachedStore) CreateTenant(ctx context.Context, tenant *tenants.Tenant) error {
	if err := c.Store.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	c.invalidate(ctx, tenantKey(tenant.ID), tenantListKey)
	return nil
}

// SetTenantStatus updates a tenant and invalidates it
func (c *CachedStore) SetTenantStatus(ctx context.Context, tenantID string, status tenants.Status) error {
	if err := c.Store.SetTenantStatus(ctx, tenantID, status); err != nil {
		return err
	}
	c.invalidate(ctx, tenantKey(tenantID))
	return nil
}

// CreateFranchiseClient creates a client under a franchise and invalidates affected lookups
func (c *CachedStore) CreateFranchiseClient(ctx context.Context, franchiseTenantID string, client *tenants.Tenant, relType tenants.RelationshipType, settings tenants.RelationshipSettings) (*tenants.FranchiseClient, error) {
	rel, err := c.Store.CreateFranchiseClient(ctx, franchiseTenantID, client, relType, settings)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx,
		tenantListKey,
		tenantKey(client.ID),
		relationsKey(franchiseTenantID),
		relationKey(franchiseTenantID, client.ID),
	)
	return rel, nil
}

// SetFranchiseClientStatus updates a relationship and drops every cached relationship lookup
func (c *CachedStore) SetFranchiseClientStatus(ctx context.Context, relationshipID string, status tenants.RelationshipStatus) error {
	if err := c.Store.SetFranchiseClientStatus(ctx, relationshipID, status); err != nil {
		return err
	}
	// The relationship id alone does not identify the cached pair
	c.gen.Add(1)
	if err := c.backend.DelPrefix(ctx, keyPrefix+"rel"); err != nil {
		c.logger.WithError(err).Error("cache invalidation failed")
	}
	return nil
}

// CreateUser creates a user and invalidates it
func (c *CachedStore) CreateUser(ctx context.Context, user *users.User) error {
	if err := c.Store.CreateUser(ctx, user); err != nil {
		return err
	}
	c.invalidate(ctx, userKey(user.ID))
	return nil
}

// UpdateUserRole updates a user and invalidates it
func (c *CachedStore) UpdateUserRole(ctx context.Context, userID string, role rbac.RoleCode, overrides users.Overrides) error {
	if err := c.Store.UpdateUserRole(ctx, userID, role, overrides); err != nil {
		return err
	}
	c.invalidate(ctx, userKey(userID))
	return nil
}

// HealthCheck checks the underlying store and, when supported, the cache backend
func (c *CachedStore) HealthCheck(ctx context.Context) error {
	if err := c.Store.HealthCheck(ctx); err != nil {
		return err
	}
	if p, ok := c.backend.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache unhealthy: %w", err)
		}
	}
	return nil
}

// Close closes the underlying store and the cache backend
func (c *CachedStore) Close() error {
	var errs []error
	if err := c.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := c.backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ storage.Store = (*CachedStore)(nil)
	_ CacheBackend  = (*LRUBackend)(nil)
	_ CacheBackend  = (*RedisClient)(nil)
)

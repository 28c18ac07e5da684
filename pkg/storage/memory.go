package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// MemoryStore keeps everything in process memory. It is safe for concurrent use
// and returns copies, so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*users.User
	tenants       map[string]*tenants.Tenant
	relationships map[string]*tenants.FranchiseClient
	activity      []audit.Record
	nextLogID     int64
	now           func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*users.User),
		tenants:       make(map[string]*tenants.Tenant),
		relationships: make(map[string]*tenants.FranchiseClient),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetUser returns a copy of the user
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return copyUser(u), nil
}

// GetTenant returns a copy of the tenant
func (m *MemoryStore) GetTenant(ctx context.Context, id string) (*tenants.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return copyTenant(t), nil
}

// FindActiveFranchiseClient returns the active relationship, or nil when none exists
func (m *MemoryStore) FindActiveFranchiseClient(ctx context.Context, franchiseTenantID, clientTenantID string) (*tenants.FranchiseClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rel := range m.relationships {
		if rel.FranchiseTenantID == franchiseTenantID &&
			rel.ClientTenantID == clientTenantID &&
			rel.IsActive() {
			cp := *rel
			return &cp, nil
		}
	}
	return nil, nil
}

// ListActiveFranchiseClients returns the franchise's active relationships ordered by client id
func (m *MemoryStore) ListActiveFranchiseClients(ctx context.Context, franchiseTenantID string) ([]tenants.FranchiseClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]tenants.FranchiseClient, 0)
	for _, rel := range m.relationships {
		if rel.FranchiseTenantID == franchiseTenantID && rel.IsActive() {
			out = append(out, *rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientTenantID < out[j].ClientTenantID })
	return out, nil
}

// ListTenantIDs returns every tenant id, sorted
func (m *MemoryStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendActivityLog stores a copy of record and assigns its ID
func (m *MemoryStore) AppendActivityLog(ctx context.Context, record *audit.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLogID++
	record.ID = m.nextLogID
	if record.Timestamp.IsZero() {
		record.Timestamp = m.now()
	}
	m.activity = append(m.activity, *record)
	return nil
}

// ActivityLogs returns a copy of every appended record in order
func (m *MemoryStore) ActivityLogs() []audit.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]audit.Record(nil), m.activity...)
}

// CreateTenant stores tenant, assigning an id when empty
func (m *MemoryStore) CreateTenant(ctx context.Context, tenant *tenants.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createTenantLocked(tenant)
}

func (m *MemoryStore) createTenantLocked(tenant *tenants.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if _, exists := m.tenants[tenant.ID]; exists {
		return fmt.Errorf("tenant %s: %w", tenant.ID, ErrAlreadyExists)
	}
	if tenant.Status == "" {
		tenant.Status = tenants.StatusActive
	}
	now := m.now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	m.tenants[tenant.ID] = copyTenant(tenant)
	return nil
}

// SetTenantStatus changes a tenant's status
func (m *MemoryStore) SetTenantStatus(ctx context.Context, tenantID string, status tenants.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	t.Status = status
	t.UpdatedAt = m.now()
	return nil
}

// CreateFranchiseClient creates the client tenant and the relationship atomically
func (m *MemoryStore) CreateFranchiseClient(ctx context.Context, franchiseTenantID string, client *tenants.Tenant, relType tenants.RelationshipType, settings tenants.RelationshipSettings) (*tenants.FranchiseClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[franchiseTenantID]; !ok {
		return nil, fmt.Errorf("franchise tenant %s: %w", franchiseTenantID, ErrNotFound)
	}

	created := *client
	if created.Type == "" {
		created.Type = tenants.TypeClient
	}
	parent := franchiseTenantID
	created.ParentTenantID = &parent

	if err := m.createTenantLocked(&created); err != nil {
		return nil, err
	}
	*client = created

	if relType == "" {
		relType = tenants.RelationshipDirect
	}
	now := m.now()
	rel := &tenants.FranchiseClient{
		ID:                uuid.New().String(),
		FranchiseTenantID: franchiseTenantID,
		ClientTenantID:    created.ID,
		Type:              relType,
		Status:            tenants.RelationshipActive,
		Settings:          settings,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.relationships[rel.ID] = rel

	cp := *rel
	return &cp, nil
}

// SetFranchiseClientStatus changes a relationship's status. Relationships are never removed.
func (m *MemoryStore) SetFranchiseClientStatus(ctx context.Context, relationshipID string, status tenants.RelationshipStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relationships[relationshipID]
	if !ok {
		return fmt.Errorf("franchise relationship %s: %w", relationshipID, ErrNotFound)
	}
	rel.Status = status
	rel.UpdatedAt = m.now()
	return nil
}

// CreateUser stores user, assigning an id when empty
func (m *MemoryStore) CreateUser(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, ErrAlreadyExists)
	}
	if _, ok := m.tenants[user.TenantID]; !ok {
		return fmt.Errorf("tenant %s: %w", user.TenantID, ErrNotFound)
	}
	if user.Status == "" {
		user.Status = users.StatusActive
	}
	now := m.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = copyUser(user)
	return nil
}

// UpdateUserRole replaces the user's role and overrides
func (m *MemoryStore) UpdateUserRole(ctx context.Context, userID string, role rbac.RoleCode, overrides users.Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	u.Role = role
	u.Permissions = overrides.Clone()
	u.UpdatedAt = m.now()
	return nil
}

// HealthCheck always succeeds
func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

func copyUser(u *users.User) *users.User {
	cp := *u
	cp.Permissions = u.Permissions.Clone()
	return &cp
}

func copyTenant(t *tenants.Tenant) *tenants.Tenant {
	cp := *t
	if t.ParentTenantID != nil {
		parent := *t.ParentTenantID
		cp.ParentTenantID = &parent
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)

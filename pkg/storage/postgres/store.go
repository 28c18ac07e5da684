package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements storage.Store on PostgreSQL
type Store struct {
	db       *sql.DB
	reader   func() *sql.DB
	cm       *ConnectionManager
	activity *audit.DBWriter
	now      func() time.Time
}

// NewStore wraps an open database. The schema must already exist (see RunMigrations).
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		reader:   func() *sql.DB { return db },
		activity: audit.NewDBWriterForSchema(db),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open connects using config, optionally runs migrations and returns the store
func Open(ctx context.Context, config storage.Config, logger logrus.FieldLogger) (*Store, error) {
	cm, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: config.PostgresReplicaURLs,
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
		MaxLifetime: 1 * time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}, logger)
	if err != nil {
		return nil, err
	}

	if config.RunMigrations {
		if err := RunMigrations(ctx, cm.Primary(), logger); err != nil {
			cm.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	s := NewStore(cm.Primary())
	s.cm = cm
	if config.ReplicaReads {
		s.reader = cm.Replica
	}
	return s, nil
}

// DB returns the primary connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetUser loads a user with its override map
func (s *Store) GetUser(ctx context.Context, id string) (*users.User, error) {
	query := `
		SELECT id, tenant_id, email, name, role, status, permissions, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		u               users.User
		email, name     sql.NullString
		permissionsJSON []byte
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.TenantID,
		&email,
		&name,
		&u.Role,
		&u.Status,
		&permissionsJSON,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Email = email.String
	u.Name = name.String

	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &u.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &u, nil
}

// GetTenant loads a tenant
func (s *Store) GetTenant(ctx context.Context, id string) (*tenants.Tenant, error) {
	query := `
		SELECT id, name, type, parent_tenant_id, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var (
		t      tenants.Tenant
		parent sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&parent,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if parent.Valid {
		p := parent.String
		t.ParentTenantID = &p
	}

	return &t, nil
}

const franchiseClientColumns = `id, franchise_tenant_id, client_tenant_id, relationship_type, status, settings, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFranchiseClient(row rowScanner) (*tenants.FranchiseClient, error) {
	var (
		fc           tenants.FranchiseClient
		settingsJSON []byte
	)

	if err := row.Scan(
		&fc.ID,
		&fc.FranchiseTenantID,
		&fc.ClientTenantID,
		&fc.Type,
		&fc.Status,
		&settingsJSON,
		&fc.CreatedAt,
		&fc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &fc.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relationship settings: %w", err)
		}
	}

	return &fc, nil
}

// FindActiveFranchiseClient returns the active relationship, or nil when none exists
func (s *Store) FindActiveFranchiseClient(ctx context.Context, franchiseTenantID, clientTenantID string) (*tenants.FranchiseClient, error) {
	query := `SELECT ` + franchiseClientColumns + `
		FROM franchise_clients
		WHERE franchise_tenant_id = $1 AND client_tenant_id = $2 AND status = 'active'
		LIMIT 1
	`

	fc, err := scanFranchiseClient(s.db.QueryRowContext(ctx, query, franchiseTenantID, clientTenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find franchise relationship: %w", err)
	}

	return fc, nil
}

// ListActiveFranchiseClients returns the franchise's active relationships ordered by client id
func (s *Store) ListActiveFranchiseClients(ctx context.Context, franchiseTenantID string) ([]tenants.FranchiseClient, error) {
	query := `SELECT ` + franchiseClientColumns + `
		FROM franchise_clients
		WHERE franchise_tenant_id = $1 AND status = 'active'
		ORDER BY client_tenant_id
	`

	rows, err := s.db.QueryContext(ctx, query, franchiseTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list franchise clients: %w", err)
	}
	defer rows.Close()

	out := make([]tenants.FranchiseClient, 0)
	for rows.Next() {
		fc, err := scanFranchiseClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan franchise client: %w", err)
		}
		out = append(out, *fc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating franchise clients: %w", err)
	}

	return out, nil
}

// ListTenantIDs returns every tenant id, sorted. It may be served by a replica.
func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.reader().QueryContext(ctx, "SELECT id FROM tenants ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return ids, nil
}

// AppendActivityLog inserts an activity log record
func (s *Store) AppendActivityLog(ctx context.Context, record *audit.Record) error {
	return s.activity.Append(ctx, record)
}

// SearchActivityLogs reads activity logs for reporting
func (s *Store) SearchActivityLogs(ctx context.Context, filter audit.SearchFilter) ([]*audit.Record, error) {
	return s.activity.Search(ctx, filter)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insertTenant(ctx context.Context, ex execer, tenant *tenants.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if tenant.Status == "" {
		tenant.Status = tenants.StatusActive
	}

	query := `
		INSERT INTO tenants (id, name, type, parent_tenant_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := s.now()
	_, err := ex.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Type,
		tenant.ParentTenantID,
		tenant.Status,
		now,
		now,
	)
	if err != nil {
		return classify(fmt.Sprintf("tenant %s", tenant.ID), err)
	}

	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// CreateTenant inserts a tenant, assigning an id when empty
func (s *Store) CreateTenant(ctx context.Context, tenant *tenants.Tenant) error {
	return s.insertTenant(ctx, s.db, tenant)
}

// SetTenantStatus changes a tenant's status
func (s *Store) SetTenantStatus(ctx context.Context, tenantID string, status tenants.Status) error {
	return s.updateOne(ctx,
		"UPDATE tenants SET status = $1, updated_at = $2 WHERE id = $3",
		fmt.Sprintf("tenant %s", tenantID),
		status, s.now(), tenantID,
	)
}

// CreateFranchiseClient creates the client tenant and its relationship in one transaction
func (s *Store) CreateFranchiseClient(ctx context.Context, franchiseTenantID string, client *tenants.Tenant, relType tenants.RelationshipType, settings tenants.RelationshipSettings) (*tenants.FranchiseClient, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relationship settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)", franchiseTenantID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check franchise tenant: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("franchise tenant %s: %w", franchiseTenantID, storage.ErrNotFound)
	}

	// Work on a copy; client is only filled in once the transaction commits
	created := *client
	if created.Type == "" {
		created.Type = tenants.TypeClient
	}
	parent := franchiseTenantID
	created.ParentTenantID = &parent

	if err := s.insertTenant(ctx, tx, &created); err != nil {
		return nil, err
	}

	if relType == "" {
		relType = tenants.RelationshipDirect
	}
	now := s.now()
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

	query := `
		INSERT INTO franchise_clients (id, franchise_tenant_id, client_tenant_id, relationship_type, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, query,
		rel.ID,
		rel.FranchiseTenantID,
		rel.ClientTenantID,
		rel.Type,
		rel.Status,
		string(settingsJSON),
		now,
		now,
	)
	if err != nil {
		return nil, classify("franchise relationship", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit franchise client: %w", err)
	}

	*client = created
	return rel, nil
}

// SetFranchiseClientStatus changes a relationship's status. Relationships are never deleted.
func (s *Store) SetFranchiseClientStatus(ctx context.Context, relationshipID string, status tenants.RelationshipStatus) error {
	return s.updateOne(ctx,
		"UPDATE franchise_clients SET status = $1, updated_at = $2 WHERE id = $3",
		fmt.Sprintf("franchise relationship %s", relationshipID),
		status, s.now(), relationshipID,
	)
}

// CreateUser inserts a user, assigning an id when empty
func (s *Store) CreateUser(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Status == "" {
		user.Status = users.StatusActive
	}

	permissionsJSON, err := marshalOverrides(user.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, tenant_id, email, name, role, status, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := s.now()
	_, err = s.db.ExecContext(ctx, query,
		user.ID,
		user.TenantID,
		nullString(user.Email),
		nullString(user.Name),
		user.Role,
		user.Status,
		permissionsJSON,
		now,
		now,
	)
	if err != nil {
		return classify(fmt.Sprintf("user %s", user.ID), err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// UpdateUserRole replaces the user's role and override map together
func (s *Store) UpdateUserRole(ctx context.Context, userID string, role rbac.RoleCode, overrides users.Overrides) error {
	permissionsJSON, err := marshalOverrides(overrides)
	if err != nil {
		return err
	}

	return s.updateOne(ctx,
		"UPDATE users SET role = $1, permissions = $2, updated_at = $3 WHERE id = $4",
		fmt.Sprintf("user %s", userID),
		role, permissionsJSON, s.now(), userID,
	)
}

// HealthCheck pings the database (primary and replicas when managed)
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.cm != nil {
		return s.cm.HealthCheck(ctx)
	}
	return s.db.PingContext(ctx)
}

// Close closes the underlying connections
func (s *Store) Close() error {
	if s.cm != nil {
		return s.cm.Close()
	}
	return s.db.Close()
}

func (s *Store) updateOne(ctx context.Context, query, what string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}

func marshalOverrides(o users.Overrides) (string, error) {
	if o == nil {
		return "{}", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// classify maps constraint violations onto storage sentinels
func classify(what string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, storage.ErrAlreadyExists)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s references a missing record: %w", what, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

var _ storage.Store = (*Store)(nil)

// StartReplicaHealthCheck prunes unhealthy read replicas every interval
// until ctx is done. It does nothing for stores built with NewStore.
func (s *Store) StartReplicaHealthCheck(ctx context.Context, interval time.Duration) {
	if s.cm == nil {
		return
	}
	s.cm.StartHealthCheckRoutine(ctx, interval)
}

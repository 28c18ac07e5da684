package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var userColumns = []string{"id", "tenant_id", "email", "name", "role", "status", "permissions", "created_at", "updated_at"}

func TestStore_GetUser(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			"u-1", "t-1", "ed@example.com", nil, "E", "active",
			[]byte(`{"content":["read","update"],"pages":true,"media":{"create":false},"orders":42}`),
			fixedNow, fixedNow,
		))

	u, err := s.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", u.TenantID)
	assert.Equal(t, rbac.RoleEditor, u.Role)
	assert.Equal(t, users.StatusActive, u.Status)
	assert.Equal(t, "", u.Name)

	assert.True(t, u.Allows(rbac.ResourceContent, rbac.ActionUpdate))
	assert.False(t, u.Allows(rbac.ResourceContent, rbac.ActionDelete))
	assert.True(t, u.Allows(rbac.ResourcePages, rbac.ActionDelete))
	assert.False(t, u.Allows(rbac.ResourceMedia, rbac.ActionCreate))
	assert.False(t, u.Allows(rbac.ResourceOrders, rbac.ActionRead))
	assert.IsType(t, users.UnrecognizedGrant{}, u.Permissions[rbac.ResourceOrders])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetUser_NotFound(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetUser_Failure(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM users").
		WillReturnError(sql.ErrConnDone)

	_, err := s.GetUser(context.Background(), "u-1")
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err))
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStore_GetTenant(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1").
		WithArgs("cl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "parent_tenant_id", "status", "created_at", "updated_at"}).
			AddRow("cl-1", "Client", "client", "fr-1", "suspended", fixedNow, fixedNow))

	tenant, err := s.GetTenant(context.Background(), "cl-1")
	require.NoError(t, err)
	assert.Equal(t, tenants.TypeClient, tenant.Type)
	require.NotNil(t, tenant.ParentTenantID)
	assert.Equal(t, "fr-1", *tenant.ParentTenantID)
	assert.False(t, tenant.IsActive())

	mock.ExpectQuery("SELECT (.+) FROM tenants").WillReturnError(sql.ErrNoRows)
	_, err = s.GetTenant(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

var relColumns = []string{"id", "franchise_tenant_id", "client_tenant_id", "relationship_type", "status", "settings", "created_at", "updated_at"}

func TestStore_FindActiveFranchiseClient(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("FROM franchise_clients WHERE franchise_tenant_id = \\$1 AND client_tenant_id = \\$2 AND status = 'active'").
		WithArgs("fr-1", "cl-1").
		WillReturnRows(sqlmock.NewRows(relColumns).
			AddRow("rel-1", "fr-1", "cl-1", "referral", "active", []byte(`{"allowDirectAccess":true}`), fixedNow, fixedNow))

	rel, err := s.FindActiveFranchiseClient(context.Background(), "fr-1", "cl-1")
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, tenants.RelationshipReferral, rel.Type)
	assert.True(t, rel.IsActive())
	assert.True(t, rel.Settings.AllowDirectAccess)

	mock.ExpectQuery("FROM franchise_clients").
		WithArgs("fr-1", "cl-9").
		WillReturnRows(sqlmock.NewRows(relColumns))

	rel, err = s.FindActiveFranchiseClient(context.Background(), "fr-1", "cl-9")
	require.NoError(t, err)
	assert.Nil(t, rel)

	mock.ExpectQuery("FROM franchise_clients").WillReturnError(sql.ErrConnDone)
	_, err = s.FindActiveFranchiseClient(context.Background(), "fr-1", "cl-1")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListActiveFranchiseClients(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("FROM franchise_clients WHERE franchise_tenant_id = \\$1 AND status = 'active' ORDER BY client_tenant_id").
		WithArgs("fr-1").
		WillReturnRows(sqlmock.NewRows(relColumns).
			AddRow("rel-1", "fr-1", "cl-1", "direct", "active", []byte(`{}`), fixedNow, fixedNow).
			AddRow("rel-2", "fr-1", "cl-2", "partnership", "active", []byte(`{"shareAnalytics":true}`), fixedNow, fixedNow))

	rels, err := s.ListActiveFranchiseClients(context.Background(), "fr-1")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "cl-2", rels[1].ClientTenantID)
	assert.True(t, rels[1].Settings.ShareAnalytics)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListTenantIDs(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT id FROM tenants ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := s.ListTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestStore_CreateTenant(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("t-1", "Acme", "business", nil, "active", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tenant := &tenants.Tenant{ID: "t-1", Name: "Acme", Type: tenants.TypeBusiness}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	assert.Equal(t, tenants.StatusActive, tenant.Status)
	assert.Equal(t, fixedNow, tenant.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateTenant_Duplicate(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO tenants").
		WillReturnError(&pq.Error{Code: codeUniqueViolation})

	err := s.CreateTenant(context.Background(), &tenants.Tenant{ID: "t-1", Name: "Acme", Type: tenants.TypeBusiness})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestStore_SetTenantStatus(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE tenants SET status = \\$1, updated_at = \\$2 WHERE id = \\$3").
		WithArgs("suspended", fixedNow, "t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetTenantStatus(context.Background(), "t-1", tenants.StatusSuspended))

	mock.ExpectExec("UPDATE tenants").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.SetTenantStatus(context.Background(), "missing", tenants.StatusActive)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateFranchiseClient(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("fr-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("cl-1", "Client", "client", "fr-1", "active", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO franchise_clients").
		WithArgs(sqlmock.AnyArg(), "fr-1", "cl-1", "direct", "active", `{"allowDirectAccess":false,"shareAnalytics":true,"customBranding":false}`, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := &tenants.Tenant{ID: "cl-1", Name: "Client"}
	rel, err := s.CreateFranchiseClient(context.Background(), "fr-1", client, "", tenants.RelationshipSettings{ShareAnalytics: true})
	require.NoError(t, err)
	assert.Equal(t, "cl-1", rel.ClientTenantID)
	assert.Equal(t, tenants.RelationshipDirect, rel.Type)
	assert.NotEmpty(t, rel.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateFranchiseClient_RollsBack(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO tenants").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO franchise_clients").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	client := &tenants.Tenant{ID: "cl-1", Name: "Client"}
	_, err := s.CreateFranchiseClient(context.Background(), "fr-1", client, "", tenants.RelationshipSettings{})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// The rolled back row must not leak into the caller's tenant
	assert.Equal(t, tenants.Tenant{ID: "cl-1", Name: "Client"}, *client)
}

func TestStore_CreateFranchiseClient_MissingFranchise(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	client := &tenants.Tenant{}
	_, err := s.CreateFranchiseClient(context.Background(), "missing", client, "", tenants.RelationshipSettings{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, tenants.Tenant{}, *client)
}

func TestStore_SetFranchiseClientStatus(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE franchise_clients SET status").
		WithArgs("terminated", fixedNow, "rel-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetFranchiseClientStatus(context.Background(), "rel-1", tenants.RelationshipTerminated))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateUser(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("u-1", "t-1", "a@example.com", nil, "A", "active", `{"users":true}`, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &users.User{
		ID:          "u-1",
		TenantID:    "t-1",
		Email:       "a@example.com",
		Role:        rbac.RolePlatformAdmin,
		Permissions: users.Overrides{rbac.ResourceUsers: users.BooleanGrant(true)},
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	assert.Equal(t, users.StatusActive, user.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateUser_MissingTenant(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: codeForeignKeyViolation})

	err := s.CreateUser(context.Background(), &users.User{ID: "u-1", TenantID: "missing", Role: rbac.RoleGuest})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_UpdateUserRole(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectExec("UPDATE users SET role = \\$1, permissions = \\$2, updated_at = \\$3 WHERE id = \\$4").
		WithArgs("D", `{"pages":["read"]}`, fixedNow, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateUserRole(context.Background(), "u-1", rbac.RoleDesigner,
		users.Overrides{rbac.ResourcePages: users.ActionSetGrant{rbac.ActionRead}})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE users").
		WithArgs("G", "{}", fixedNow, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.UpdateUserRole(context.Background(), "missing", rbac.RoleGuest, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendActivityLog(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	record := &audit.Record{TenantID: "t-1", UserID: "u-1", Action: "read", Resource: "content", Status: audit.StatusAllowed}
	require.NoError(t, s.AppendActivityLog(context.Background(), record))
	assert.Equal(t, int64(11), record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db)

	mock.ExpectPing()
	assert.NoError(t, s.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestMigrations_Ordered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gatekeeper_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"version"})
	for _, m := range Migrations()[:len(Migrations())-1] {
		rows.AddRow(m.Version)
	}
	mock.ExpectQuery("SELECT version FROM gatekeeper_migrations").WillReturnRows(rows)

	last := Migrations()[len(Migrations())-1]
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS activity_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO gatekeeper_migrations").
		WithArgs(last.Version, last.Description).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), db, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gatekeeper_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM gatekeeper_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenants").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), db, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

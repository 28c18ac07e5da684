// Package storage defines the data layer the authorizer depends on and an
// in-memory implementation of it.
//
// # Interfaces
//
// The Store interface is composed of focused capabilities:
//
//   - UserReader: GetUser
//   - tenants.Store: GetTenant, FindActiveFranchiseClient, ListActiveFranchiseClients, ListTenantIDs
//   - ActivityLogAppender: AppendActivityLog
//   - TenantWriter: CreateTenant, SetTenantStatus, CreateFranchiseClient, SetFranchiseClientStatus
//   - UserWriter: CreateUser, UpdateUserRole
//   - HealthChecker: HealthCheck
//
// Lookups of missing records return an error wrapping ErrNotFound, except
// FindActiveFranchiseClient which returns nil, nil when there is no active
// relationship. Any other error is a backend failure.
//
// # Implementations
//
// MemoryStore is used in development mode and in tests. The postgres
// subpackage provides the PostgreSQL store and an optional read cache.
//
// Users and relationships are never hard-deleted: users are suspended and
// relationships move to suspended or terminated.
package storage

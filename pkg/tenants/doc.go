// Package tenants models tenants and franchise-client relationships and
// resolves whether an actor may act against a given tenant.
//
// Access rules:
//
//	Platform administrators (role A) may act against every tenant.
//	Every actor may act against its own tenant.
//	Franchise owners (role F) may also act against tenants linked to their
//	franchise by an active FranchiseClient relationship.
//
// Suspended and terminated relationships are inert. The Resolver never caches:
// each call reads the Store, so any caching must happen in the Store with
// invalidation on write.
package tenants

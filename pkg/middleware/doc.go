// Package middleware provides HTTP middleware for actor identity, permission
// enforcement and rate limiting.
//
// # Middleware Components
//
// ActorFromHeader: trusts the actor id set by the upstream authentication layer
//
//	router.Use(middleware.ActorFromHeader("X-Actor-ID"))
//
// RequirePermission: guards a route with an authorization decision
//
//	r.Handle("/tenants/{tenant}/orders",
//		middleware.RequirePermission(authorizer, rbac.ResourceOrders, rbac.ActionRead, nil)(ordersHandler))
//
// Grants limited to the actor's own resources need the ownership fact:
//
//	middleware.RequirePermission(authorizer, rbac.ResourceUsers, rbac.ActionUpdate, nil,
//		middleware.WithOwner(middleware.OwnedByPathVar("id")))
//
// Denied maps to 403 {"error":"forbidden"} and Indeterminate to
// 500 {"error":"internal server error"}.
//
// RateLimitMiddleware: per-actor (or per-IP) limiting over an in-process token
// bucket or a Redis fixed window
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger).Handler)
//
// # Related Packages
//
//   - pkg/authz: Authorization decisions
//   - pkg/httputil: Response helpers and request id middleware
package middleware

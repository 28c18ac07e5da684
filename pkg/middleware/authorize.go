package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/authz"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// TenantVar and ResourceIDVar are the route variables RequirePermission reads
// the target tenant and resource instance from
const (
	TenantVar     = "tenant"
	ResourceIDVar = "id"
)

// Authorizer is the part of *authz.Authorizer the middleware needs
type Authorizer interface {
	Authorize(ctx context.Context, req authz.Request) (authz.Decision, error)
}

// OwnerFunc reports whether the resource addressed by r belongs to actorID.
// An error makes the decision indeterminate.
type OwnerFunc func(r *http.Request, actorID string) (bool, error)

// PermissionOption customizes RequirePermission
type PermissionOption func(*permissionGuard)

type permissionGuard struct {
	owner OwnerFunc
}

// WithOwner supplies the ownership fact for grants limited to the actor's
// own resources. Without it every request is treated as not owned.
func WithOwner(fn OwnerFunc) PermissionOption {
	return func(g *permissionGuard) {
		g.owner = fn
	}
}

// OwnedByPathVar treats the resource as owned when the route variable name
// equals the actor id, as in /users/{id}/profile
func OwnedByPathVar(name string) OwnerFunc {
	return func(r *http.Request, actorID string) (bool, error) {
		return actorID != "" && mux.Vars(r)[name] == actorID, nil
	}
}

// RequirePermission lets the request through only when the actor returned by
// actorFn is allowed action on resource. The target tenant is the route's
// {tenant} variable, or the actor's own tenant when the route has none.
//
// Denied requests get 403 "forbidden" and indeterminate ones 500 "internal
// server error"; neither body says why.
func RequirePermission(authorizer Authorizer, resource rbac.Resource, action rbac.Action, actorFn ActorFunc, opts ...PermissionOption) func(http.Handler) http.Handler {
	if actorFn == nil {
		actorFn = ActorFromContext
	}
	guard := &permissionGuard{}
	for _, opt := range opts {
		opt(guard)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			vars := mux.Vars(r)
			logger := observability.FromContext(ctx).WithFields(logrus.Fields{
				"resource": resource,
				"action":   action,
			})

			actorID := actorFn(r)
			var isOwn bool
			if guard.owner != nil {
				var err error
				if isOwn, err = guard.owner(r, actorID); err != nil {
					logger.WithError(err).Error("Ownership lookup failed")
					httputil.WriteInternalError(w)
					return
				}
			}

			d, err := authorizer.Authorize(ctx, authz.Request{
				ActorID:        actorID,
				Resource:       resource,
				Action:         action,
				TargetTenantID: vars[TenantVar],
				ResourceID:     vars[ResourceIDVar],
				IsOwn:          isOwn,
				Meta: authz.Meta{
					IP:        getClientIP(r),
					UserAgent: r.UserAgent(),
					RequestID: contextkeys.GetRequestID(ctx),
				},
			})
			if err != nil {
				logger.WithError(err).Error("Authorization indeterminate")
				httputil.WriteInternalError(w)
				return
			}
			if !d.Allowed() {
				httputil.WriteForbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

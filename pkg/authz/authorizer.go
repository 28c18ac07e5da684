package authz

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/storage"
	"github.com/platinummonkey/gatekeeper/pkg/tenants"
	"github.com/platinummonkey/gatekeeper/pkg/users"
)

const tracerName = "github.com/platinummonkey/gatekeeper/pkg/authz"

// Store is the part of the data layer the authorizer reads and writes
type Store interface {
	storage.UserReader
	tenants.Store
	UpdateUserRole(ctx context.Context, userID string, role rbac.RoleCode, overrides users.Overrides) error
}

// Recorder receives decision metrics. *observability.Metrics implements it.
type Recorder interface {
	ObserveDecision(outcome, reason string, elapsed time.Duration)
	ObserveAuditFailure()
}

type nopRecorder struct{}

func (nopRecorder) ObserveDecision(string, string, time.Duration) {}
func (nopRecorder) ObserveAuditFailure()                          {}

// Options configures an Authorizer
type Options struct {
	Logger         logrus.FieldLogger
	Metrics        Recorder
	TracerProvider trace.TracerProvider

	// RequireAudit turns an allowed decision into an indeterminate one when
	// its activity log record cannot be written
	RequireAudit bool
}

// DefaultOptions returns options with auditing required
func DefaultOptions() Options {
	return Options{RequireAudit: true}
}

// Authorizer is the single entry point for authorization decisions. It is
// stateless apart from its collaborators and safe for concurrent use.
type Authorizer struct {
	store        Store
	catalog      *rbac.Catalog
	resolver     *tenants.Resolver
	writer       audit.Writer
	logger       logrus.FieldLogger
	metrics      Recorder
	tracer       trace.Tracer
	requireAudit bool
}

// NewAuthorizer creates an authorizer. A nil catalog uses the reference
// catalog and a nil writer discards activity records.
func NewAuthorizer(store Store, catalog *rbac.Catalog, writer audit.Writer, opts Options) *Authorizer {
	if catalog == nil {
		catalog = rbac.DefaultCatalog()
	}
	if writer == nil {
		writer = audit.NopWriter{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Authorizer{
		store:        store,
		catalog:      catalog,
		resolver:     tenants.NewResolver(store),
		writer:       writer,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.TracerProvider.Tracer(tracerName),
		requireAudit: opts.RequireAudit,
	}
}

// Catalog returns the role catalog decisions are made against
func (a *Authorizer) Catalog() *rbac.Catalog {
	return a.catalog
}

// Authorize decides whether req.ActorID may perform req.Action on req.Resource.
// A non-nil error means the outcome is Indeterminate; it matches
// ErrIndeterminate and wraps a *StorageError naming the failed step.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(
		attribute.String("authz.actor_id", req.ActorID),
		attribute.String("authz.resource", string(req.Resource)),
		attribute.String("authz.action", string(req.Action)),
		attribute.Bool("authz.probe", req.Probe),
	))
	defer span.End()

	d, err := a.authorize(ctx, req)

	span.SetAttributes(
		attribute.String("authz.outcome", string(d.Outcome)),
		attribute.String("authz.reason", string(d.Reason)),
		attribute.String("authz.tenant_id", d.TenantID),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Indeterminate))
	}

	a.metrics.ObserveDecision(string(d.Outcome), string(d.Reason), time.Since(start))
	a.logDecision(ctx, req, d, err)
	return d, err
}

func (a *Authorizer) authorize(ctx context.Context, req Request) (Decision, error) {
	d := Decision{ActorID: req.ActorID}

	actor, err := a.store.GetUser(ctx, req.ActorID)
	if err != nil {
		if storage.IsNotFound(err) {
			return d.deny(ReasonUnknownActor), nil
		}
		return d.indeterminate(ReasonStorageError), storageError("get user", err)
	}

	d.ActorRole = actor.Role
	d.TenantID = req.TargetTenantID
	if d.TenantID == "" {
		d.TenantID = actor.TenantID
	}

	if !actor.IsActive() {
		return a.record(ctx, req, actor, d.deny(ReasonActorInactive))
	}
	if !a.catalog.Has(actor.Role) {
		return a.record(ctx, req, actor, d.deny(ReasonUnknownRole))
	}

	target, scope, err := a.resolveTarget(ctx, actor, d.TenantID)
	if err != nil {
		return d.indeterminate(ReasonStorageError), err
	}
	d.TenantLevel = scope.TenantLevel
	d.FranchiseLevel = scope.FranchiseLevel

	switch {
	case target == nil:
		return a.record(ctx, req, actor, d.deny(ReasonUnknownTenant))
	case !target.IsActive():
		return a.record(ctx, req, actor, d.deny(ReasonTenantInactive))
	case !scope.Accessible:
		return a.record(ctx, req, actor, d.deny(ReasonTenantOutOfScope))
	}

	// Both checks always run
	d.RoleGranted = a.catalog.HasPermission(actor.Role, req.Resource, req.Action, rbac.Context{
		Own:            req.IsOwn,
		TenantLevel:    scope.TenantLevel,
		FranchiseLevel: scope.FranchiseLevel,
	})
	d.OverrideGranted = actor.Allows(req.Resource, req.Action)

	switch {
	case !d.RoleGranted:
		d = d.deny(ReasonRoleDenied)
	case !d.OverrideGranted:
		d = d.deny(ReasonOverrideDenied)
	default:
		d.Outcome = Allowed
		d.Reason = ReasonGranted
	}

	return a.record(ctx, req, actor, d)
}

// resolveTarget loads the target tenant and its relationship to the actor
// concurrently. A missing tenant is returned as nil without error.
func (a *Authorizer) resolveTarget(ctx context.Context, actor *users.User, tenantID string) (*tenants.Tenant, tenants.Scope, error) {
	var (
		target *tenants.Tenant
		scope  tenants.Scope
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := a.store.GetTenant(gctx, tenantID)
		if err != nil {
			if storage.IsNotFound(err) {
				return nil
			}
			return storageError("get tenant", err)
		}
		target = t
		return nil
	})
	g.Go(func() error {
		s, err := a.resolver.ResolveScope(gctx, actor, tenantID)
		if err != nil {
			return storageError("resolve tenant scope", err)
		}
		scope = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, tenants.Scope{}, err
	}
	return target, scope, nil
}

// record appends the activity log entry for a non-probe decision
func (a *Authorizer) record(ctx context.Context, req Request, actor *users.User, d Decision) (Decision, error) {
	if req.Probe {
		return d, nil
	}

	status := audit.StatusDenied
	if d.Allowed() {
		status = audit.StatusAllowed
	}

	requestID := req.Meta.RequestID
	if requestID == "" {
		requestID = contextkeys.GetRequestID(ctx)
	}

	rec := &audit.Record{
		TenantID:   d.TenantID,
		UserID:     actor.ID,
		Action:     string(req.Action),
		Resource:   string(req.Resource),
		ResourceID: req.ResourceID,
		Status:     status,
		Reason:     string(d.Reason),
		Details:    audit.Details{Metadata: req.Details},
		IPAddress:  req.Meta.IP,
		UserAgent:  req.Meta.UserAgent,
		RequestID:  requestID,
	}

	return a.appendRecord(ctx, rec, d)
}

func (a *Authorizer) appendRecord(ctx context.Context, rec *audit.Record, d Decision) (Decision, error) {
	if err := a.writer.Append(ctx, rec); err != nil {
		a.metrics.ObserveAuditFailure()
		if d.Allowed() && a.requireAudit {
			return d.indeterminate(ReasonAuditUnavailable), storageError("append activity log", err)
		}
		a.logger.WithError(err).WithFields(logrus.Fields{
			"actor_id": rec.UserID,
			"resource": rec.Resource,
			"action":   rec.Action,
		}).Error("Failed to write activity log")
	}
	return d, nil
}

func (a *Authorizer) logDecision(ctx context.Context, req Request, d Decision, err error) {
	log := a.logger.WithFields(logrus.Fields{
		"actor_id":  req.ActorID,
		"resource":  req.Resource,
		"action":    req.Action,
		"tenant_id": d.TenantID,
		"outcome":   d.Outcome,
		"reason":    d.Reason,
	})
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		log = log.WithField("request_id", requestID)
	}

	switch {
	case err != nil:
		log.WithError(err).Error("Authorization indeterminate")
	case d.Reason == ReasonUnknownActor:
		log.Warn("Authorization for unknown actor")
	case d.Reason == ReasonUnknownRole:
		log.WithField("role", d.ActorRole).Warn("Actor has a role outside the catalog")
	case d.Outcome == Denied:
		log.Debug("Authorization denied")
	default:
		log.Debug("Authorization granted")
	}
}

// activeActor loads an actor, returning nil when it does not exist or is not active
func (a *Authorizer) activeActor(ctx context.Context, actorID string) (*users.User, error) {
	actor, err := a.store.GetUser(ctx, actorID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, storageError("get user", err)
	}
	if !actor.IsActive() {
		return nil, nil
	}
	return actor, nil
}

// CanAccessTenant reports whether the actor may act against targetTenantID.
// Unknown and inactive actors can access nothing.
func (a *Authorizer) CanAccessTenant(ctx context.Context, actorID, targetTenantID string) (bool, error) {
	actor, err := a.activeActor(ctx, actorID)
	if err != nil || actor == nil {
		return false, err
	}

	ok, err := a.resolver.CanAccessTenant(ctx, actor, targetTenantID)
	if err != nil {
		return false, storageError("check tenant access", err)
	}
	return ok, nil
}

// AccessibleTenants returns the sorted tenant ids the actor may act against
func (a *Authorizer) AccessibleTenants(ctx context.Context, actorID string) ([]string, error) {
	actor, err := a.activeActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return []string{}, nil
	}

	ids, err := a.resolver.AccessibleTenants(ctx, actor)
	if err != nil {
		return nil, storageError("list accessible tenants", err)
	}
	return ids, nil
}

// ChangeUserRole moves targetUserID to newRole on behalf of managerID.
//
// The manager needs users:update on the target's tenant and must outrank both
// the target's current role and newRole. On success the target's overrides are
// reset to the new role's defaults. The attempt is audited, with the role
// before and after when it is allowed; the record is written before the change
// is persisted.
func (a *Authorizer) ChangeUserRole(ctx context.Context, managerID, targetUserID string, newRole rbac.RoleCode) (Decision, error) {
	ctx, span := a.tracer.Start(ctx, "authz.ChangeUserRole", trace.WithAttributes(
		attribute.String("authz.actor_id", managerID),
		attribute.String("authz.target_user_id", targetUserID),
		attribute.String("authz.new_role", string(newRole)),
	))
	defer span.End()

	d, err := a.changeUserRole(ctx, managerID, targetUserID, newRole)
	span.SetAttributes(
		attribute.String("authz.outcome", string(d.Outcome)),
		attribute.String("authz.reason", string(d.Reason)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Indeterminate))
	}
	return d, err
}

func (a *Authorizer) changeUserRole(ctx context.Context, managerID, targetUserID string, newRole rbac.RoleCode) (Decision, error) {
	d := Decision{ActorID: managerID}

	target, err := a.store.GetUser(ctx, targetUserID)
	if err != nil {
		if storage.IsNotFound(err) {
			return d.deny(ReasonUnknownTarget), nil
		}
		return d.indeterminate(ReasonStorageError), storageError("get target user", err)
	}

	d, err = a.Authorize(ctx, Request{
		ActorID:        managerID,
		Resource:       rbac.ResourceUsers,
		Action:         rbac.ActionUpdate,
		TargetTenantID: target.TenantID,
		ResourceID:     target.ID,
		IsOwn:          managerID == target.ID,
		Probe:          true,
	})
	if err != nil || d.Reason == ReasonUnknownActor {
		return d, err
	}

	if d.Allowed() &&
		!(a.catalog.CanManageRole(d.ActorRole, target.Role) && a.catalog.CanManageRole(d.ActorRole, newRole)) {
		d = d.deny(ReasonRoleHierarchy)
	}

	status := audit.StatusDenied
	if d.Allowed() {
		status = audit.StatusAllowed
	}
	rec := &audit.Record{
		TenantID:   target.TenantID,
		UserID:     managerID,
		Action:     string(rbac.ActionUpdate),
		Resource:   string(rbac.ResourceUsers),
		ResourceID: target.ID,
		Status:     status,
		Reason:     string(d.Reason),
		Details: audit.Details{Metadata: map[string]interface{}{
			"operation":      "change_role",
			"requested_role": string(newRole),
		}},
		RequestID: contextkeys.GetRequestID(ctx),
	}
	if d.Allowed() {
		rec.Details.Before = map[string]interface{}{"role": string(target.Role)}
		rec.Details.After = map[string]interface{}{"role": string(newRole)}
	}

	if d, err = a.appendRecord(ctx, rec, d); err != nil || !d.Allowed() {
		return d, err
	}

	// CanManageRole only holds for roles in the catalog
	role, _ := a.catalog.Role(newRole)
	if err := a.store.UpdateUserRole(ctx, target.ID, newRole, users.DefaultOverrides(role)); err != nil {
		return d.indeterminate(ReasonStorageError), storageError("update user role", err)
	}

	a.logger.WithFields(logrus.Fields{
		"actor_id":       managerID,
		"target_user_id": target.ID,
		"from_role":      target.Role,
		"to_role":        newRole,
	}).Info("User role changed")

	return d, nil
}

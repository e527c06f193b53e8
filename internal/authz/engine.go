package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/vantage-market/vantage-market/internal/audit"
	"github.com/vantage-market/vantage-market/internal/shared"
)

// PermissionNameStore resolves permission names to their backing rows.
type PermissionNameStore interface {
	PermissionsByName(ctx context.Context, names []string) ([]Permission, error)
}

// AuditRecorder persists a record for every fresh decision. Implemented by
// the audit service; stubbed in tests.
type AuditRecorder interface {
	Record(ctx context.Context, ev audit.Event) (audit.Entry, error)
}

// DecisionObserver receives decision outcomes for metrics.
type DecisionObserver interface {
	ObserveDecision(allowed bool, reason string, cached bool)
}

// Engine orchestrates registry, cache and resolver into allow/deny
// decisions. Every fresh evaluation is handed to the audit recorder before
// the decision is returned; an audit failure fails the request closed.
type Engine struct {
	registry *Registry
	cache    *DecisionCache
	resolver *Resolver
	perms    PermissionNameStore
	auditor  AuditRecorder
	observer DecisionObserver
	logger   *slog.Logger
	flight   singleflight.Group
}

// NewEngine constructs the decision engine. observer may be nil.
func NewEngine(registry *Registry, cache *DecisionCache, resolver *Resolver, perms PermissionNameStore, auditor AuditRecorder, observer DecisionObserver, logger *slog.Logger) *Engine {
	return &Engine{
		registry: registry,
		cache:    cache,
		resolver: resolver,
		perms:    perms,
		auditor:  auditor,
		observer: observer,
		logger:   logger,
	}
}

// Decide evaluates whether the principal may invoke method+path.
//
// Order: registry lookup (no mapping denies), public short-circuit, absent
// principal denies, cache, then a full evaluation that is audited and only
// then cached. Cache hits return the prior decision tagged Cached and write
// no new audit entry.
func (e *Engine) Decide(ctx context.Context, principal *Principal, method, path string) (Decision, error) {
	mapping, ok := e.registry.Lookup(method, path)
	if !ok {
		return e.finish(ctx, principal, method, path, Decision{Reason: ReasonNoMapping})
	}

	if mapping.IsPublic {
		return e.finish(ctx, principal, method, path, Decision{Allowed: true, Reason: ReasonPublic})
	}

	if principal == nil {
		// Authentication runs upstream; this is the defensive backstop.
		return e.finish(ctx, principal, method, path, Decision{Reason: ReasonUnauthenticated})
	}

	cached, hit, err := e.cache.Get(ctx, principal.ID, mapping.ID)
	if err != nil {
		// A cache outage degrades to a miss, never to a denial.
		e.logger.Warn("decision cache read", slog.Any("error", err))
	} else if hit {
		e.observe(cached)
		return cached, nil
	}

	// Concurrent misses for the same (principal, route) collapse into one
	// evaluation and one audit entry.
	flightKey := fmt.Sprintf("%d:%d", principal.ID, mapping.ID)
	v, err, _ := e.flight.Do(flightKey, func() (any, error) {
		return e.evaluate(ctx, *principal, mapping)
	})
	if err != nil {
		return Decision{}, err
	}
	return v.(Decision), nil
}

func (e *Engine) evaluate(ctx context.Context, principal Principal, mapping RouteMapping) (Decision, error) {
	set, err := e.resolver.Resolve(ctx, principal)
	if err != nil {
		if errors.Is(err, shared.ErrConfiguration) {
			e.logger.Error("authorization configuration error", slog.Any("error", err))
			return e.finish(ctx, &principal, mapping.Method, mapping.Path, Decision{Reason: ReasonConfigError})
		}
		return Decision{}, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}

	decision, err := e.check(ctx, set, mapping)
	if err != nil {
		return Decision{}, err
	}

	// The audit write must land before the decision is cached. Caching
	// first would let a later cache hit serve a decision whose entry was
	// never recorded.
	decided, err := e.finish(ctx, &principal, mapping.Method, mapping.Path, decision)
	if err != nil {
		return Decision{}, err
	}

	if err := e.cache.Put(ctx, principal.ID, mapping.ID, decision); err != nil {
		e.logger.Warn("decision cache write", slog.Any("error", err))
	}

	return decided, nil
}

// check requires every mapped permission to be held (AND semantics). On a
// partial match the decision names the lowest-ID missing permission so the
// audit trail stays deterministic.
func (e *Engine) check(ctx context.Context, set PermissionSet, mapping RouteMapping) (Decision, error) {
	if len(mapping.Permissions) == 0 {
		return Decision{Allowed: true, Reason: ReasonGranted}, nil
	}

	rows, err := e.perms.PermissionsByName(ctx, mapping.Permissions)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: load required permissions: %v", shared.ErrPersistence, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	known := make(map[string]struct{}, len(rows))
	var missing []string
	for _, row := range rows {
		known[row.Name] = struct{}{}
		if !set.HasName(row.Name) {
			missing = append(missing, row.Name)
		}
	}
	// Required names with no backing row can never be satisfied.
	var unbacked []string
	for _, name := range mapping.Permissions {
		if _, ok := known[name]; !ok {
			unbacked = append(unbacked, name)
		}
	}
	sort.Strings(unbacked)

	if len(missing) > 0 {
		return Decision{Reason: ReasonMissingPermission, Permission: missing[0]}, nil
	}
	if len(unbacked) > 0 {
		return Decision{Reason: ReasonMissingPermission, Permission: unbacked[0]}, nil
	}

	matched := ""
	if len(rows) > 0 {
		matched = rows[0].Name
	}
	return Decision{Allowed: true, Reason: ReasonGranted, Permission: matched}, nil
}

// finish audits a fresh decision and reports it to the observer. The audit
// write happens before the decision reaches the caller.
func (e *Engine) finish(ctx context.Context, principal *Principal, method, path string, d Decision) (Decision, error) {
	if _, err := e.auditor.Record(ctx, decisionEvent(principal, method, path, d)); err != nil {
		return Decision{}, err
	}
	e.observe(d)
	return d, nil
}

func (e *Engine) observe(d Decision) {
	if e.observer != nil {
		e.observer.ObserveDecision(d.Allowed, d.Reason, d.Cached)
	}
}

func decisionEvent(principal *Principal, method, path string, d Decision) audit.Event {
	actorID := "anonymous"
	actorType := audit.ActorUser
	if principal != nil {
		actorID = strconv.FormatInt(principal.ID, 10)
		if principal.ActorType != "" {
			actorType = audit.ActorType(principal.ActorType)
		}
	}

	action := "authz.decision.allow"
	severity := audit.SeverityLow
	security := false
	if !d.Allowed {
		action = "authz.decision.deny"
		severity = audit.SeverityMedium
		security = true
	}
	if d.Reason == ReasonConfigError {
		severity = audit.SeverityCritical
	}

	meta := map[string]any{
		"reason":  d.Reason,
		"allowed": d.Allowed,
	}
	if d.Permission != "" {
		meta["permission"] = d.Permission
	}

	return audit.Event{
		Action:     action,
		Module:     "authz",
		ActorID:    actorID,
		ActorType:  actorType,
		EntityType: "route",
		EntityID:   method + " " + path,
		Severity:   severity,
		Security:   security,
		Meta:       meta,
	}
}

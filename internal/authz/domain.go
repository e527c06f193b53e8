package authz

import "time"

// RoleKind distinguishes a principal's primary business role from an
// optional assigned administrative role.
type RoleKind string

const (
	RoleKindBusiness RoleKind = "business"
	RoleKindAdmin    RoleKind = "admin"
)

// Role groups permissions under a name.
type Role struct {
	ID        int64
	Name      string
	Kind      RoleKind
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission is an atomic capability identified by a dot-path name.
// Two roles may expose identically named permissions backed by distinct
// rows, so set arithmetic always keys on the ID.
type Permission struct {
	ID       int64
	Name     string
	Resource string
	Action   string
}

// Principal is the resolved actor for a request. Every principal holds
// exactly one business role and at most one assigned role.
type Principal struct {
	ID             int64
	BusinessRoleID int64
	AssignedRoleID *int64
	ActorType      string
}

// RouteMapping binds an HTTP route to the permissions it requires, or marks
// it public. Mappings are admin-editable at runtime.
type RouteMapping struct {
	ID          int64
	Method      string
	Path        string
	Permissions []string
	IsPublic    bool
	CreatedAt   time.Time
}

// Decision reasons.
const (
	ReasonPublic            = "PUBLIC"
	ReasonGranted           = "GRANTED"
	ReasonNoMapping         = "NO_MAPPING"
	ReasonMissingPermission = "MISSING_PERMISSION"
	ReasonUnauthenticated   = "UNAUTHENTICATED"
	ReasonConfigError       = "CONFIG_ERROR"
)

// Decision is the outcome of evaluating a principal against a route.
// Permission carries the matched permission on allow and the lowest-ID
// missing permission on deny; it is surfaced to the audit trail only, never
// to callers.
type Decision struct {
	Allowed    bool
	Reason     string
	Permission string
	Cached     bool
}

package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrAuthenticationMissing indicates the request carried credentials that
	// could not be resolved to a principal.
	ErrAuthenticationMissing = errors.New("authentication missing")
	// ErrAuthorizationDenied indicates the principal may not proceed.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrConfiguration indicates invalid authorization state, such as a
	// principal without a business role.
	ErrConfiguration = errors.New("invalid authorization configuration")
	// ErrPersistence indicates a store or audit write failure. Requests that
	// observe it are failed closed, never degraded to allow.
	ErrPersistence = errors.New("persistence failure")
)

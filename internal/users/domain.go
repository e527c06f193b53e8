package users

import "time"

// Principal is an account that can act against the API, either a person
// or a machine client. Role bindings live here; what those roles grant
// is the authorization engine's concern.
type Principal struct {
	ID             int64
	Email          string
	DisplayName    string
	ActorType      string
	BusinessRoleID int64
	AssignedRoleID *int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

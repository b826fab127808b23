package models

import (
	"time"
)

// Account roles.
const (
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
	RolePortal = "portal"
)

// UserCredential is the credential row for a staff or portal identity.
// At most one of {TOTPPendingSecret, TOTPEnabled+TOTPSecret} drives a
// verification path: enabling promotes pending to active atomically.
type UserCredential struct {
	ID                string
	Email             string
	PasswordHash      string
	Role              string  // "staff", "admin", "portal"
	ContactID         *string // set for portal users, links to a contact record
	TOTPEnabled       bool
	TOTPSecret        *string // encrypted envelope, active secret
	TOTPPendingSecret *string // encrypted envelope, awaiting confirmation
	TOTPEnabledAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

package models

import "time"

// CeremonyType distinguishes registration from authentication challenges.
type CeremonyType string

const (
	CeremonyRegistration   CeremonyType = "registration"
	CeremonyAuthentication CeremonyType = "authentication"
)

// CeremonyChallenge is a single-use passkey ceremony challenge.
// UserID is nil for login ceremonies until the user is resolved by email.
// The row must be deleted on any verification attempt, success or failure.
type CeremonyChallenge struct {
	ID          string
	UserID      *string
	Challenge   []byte
	Type        CeremonyType
	SessionData []byte // serialized webauthn session state
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the challenge is past its TTL.
func (c *CeremonyChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

package models

import "time"

// PasskeyCredential is a registered public-key authenticator.
// CredentialID is asserted by the authenticator and unique across all users.
type PasskeyCredential struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	AAGUID          []byte
	SignCount       uint32
	Transports      []string
	BackupEligible  bool
	BackupState     bool
	Name            string
	LastUsedAt      *time.Time
	CreatedAt       time.Time
}

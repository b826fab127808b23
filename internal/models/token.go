package models

import "github.com/golang-jwt/jwt/v5"

// TokenKind is the closed set of token types this core issues. Every
// verifier must match on the kind before trusting any other claim.
type TokenKind string

const (
	TokenKindSession    TokenKind = "session"
	TokenKindMFAPending TokenKind = "mfa"
	TokenKindRefresh    TokenKind = "refresh"
	TokenKindPortal     TokenKind = "portal"
)

// MFA methods carried in MFA-pending tokens.
const (
	MFAMethodTOTP    = "totp"
	MFAMethodPasskey = "passkey"
)

// TokenClaims is the signed claim set for every token kind. Fields that
// do not apply to a kind are left empty and must not be read.
type TokenClaims struct {
	Kind      TokenKind `json:"kind"`
	UserID    string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Method    string    `json:"method,omitempty"`     // MFA-pending only
	ContactID string    `json:"contact_id,omitempty"` // portal only
	jwt.RegisteredClaims
}

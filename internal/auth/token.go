package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/openhearth/casekeeper/internal/models"
)

// TokenExpiries holds the TTL for each token kind.
type TokenExpiries struct {
	Access  time.Duration
	Refresh time.Duration
	MFA     time.Duration
	Portal  time.Duration
}

// TokenManager mints and verifies all token kinds. One signing key is
// shared; kinds are distinguished by an explicit claim that every
// verifier checks before trusting anything else.
type TokenManager struct {
	secret   []byte
	expiries TokenExpiries
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, expiries TokenExpiries) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		expiries: expiries,
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims, expiry time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Kind, err)
	}
	return signed, nil
}

// IssueSession mints an access/refresh pair for an authenticated user.
func (tm *TokenManager) IssueSession(user *models.UserCredential) (access string, refresh string, err error) {
	access, err = tm.sign(&models.TokenClaims{
		Kind:   models.TokenKindSession,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, tm.expiries.Access)
	if err != nil {
		return "", "", err
	}

	// Refresh tokens carry only the identity: fresh claims are loaded
	// from the store on exchange.
	refresh, err = tm.sign(&models.TokenClaims{
		Kind:   models.TokenKindRefresh,
		UserID: user.ID,
	}, tm.expiries.Refresh)
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

// IssueMFAPending mints the short-lived token handed out between a
// successful password check and second-factor completion.
func (tm *TokenManager) IssueMFAPending(user *models.UserCredential, method string) (string, error) {
	return tm.sign(&models.TokenClaims{
		Kind:   models.TokenKindMFAPending,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Method: method,
	}, tm.expiries.MFA)
}

// IssuePortal mints a portal-scoped token bound to a contact record.
func (tm *TokenManager) IssuePortal(user *models.UserCredential) (string, error) {
	if user.ContactID == nil {
		return "", fmt.Errorf("portal token requires a contact id")
	}
	return tm.sign(&models.TokenClaims{
		Kind:      models.TokenKindPortal,
		UserID:    user.ID,
		Email:     user.Email,
		ContactID: *user.ContactID,
	}, tm.expiries.Portal)
}

// validate parses a token and requires an exact kind match. A mismatch
// is a hard rejection, never a fallback.
func (tm *TokenManager) validate(tokenString string, kind models.TokenKind) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Kind != kind {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// ValidateSession verifies a staff session token. Portal and MFA-pending
// tokens are rejected here regardless of signature validity.
func (tm *TokenManager) ValidateSession(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenKindSession)
}

// ValidateMFAPending verifies an MFA-pending token.
func (tm *TokenManager) ValidateMFAPending(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenKindMFAPending)
}

// ValidateRefresh verifies a refresh token.
func (tm *TokenManager) ValidateRefresh(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenKindRefresh)
}

// ValidatePortal verifies a portal token. Staff session tokens are
// rejected here and vice versa.
func (tm *TokenManager) ValidatePortal(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenKindPortal)
}

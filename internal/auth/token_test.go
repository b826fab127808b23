package auth

import (
	"testing"
	"time"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager("test-signing-key-with-enough-length", TokenExpiries{
		Access:  24 * time.Hour,
		Refresh: 7 * 24 * time.Hour,
		MFA:     5 * time.Minute,
		Portal:  24 * time.Hour,
	})
}

func testStaffUser() *models.UserCredential {
	return &models.UserCredential{
		ID:    "user-1",
		Email: "staff@example.org",
		Role:  "staff",
	}
}

func testPortalUser() *models.UserCredential {
	contactID := "contact-42"
	return &models.UserCredential{
		ID:        "portal-1",
		Email:     "donor@example.org",
		Role:      "portal",
		ContactID: &contactID,
	}
}

func TestTokenManager_IssueSession_RoundTrip(t *testing.T) {
	tm := newTestTokenManager()

	access, refresh, err := tm.IssueSession(testStaffUser())
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := tm.ValidateSession(access)
	require.NoError(t, err)
	assert.Equal(t, models.TokenKindSession, claims.Kind)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "staff@example.org", claims.Email)
	assert.Equal(t, "staff", claims.Role)

	refreshClaims, err := tm.ValidateRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, models.TokenKindRefresh, refreshClaims.Kind)
	assert.Equal(t, "user-1", refreshClaims.UserID)
	assert.Empty(t, refreshClaims.Email)
}

func TestTokenManager_KindMismatchRejected(t *testing.T) {
	tm := newTestTokenManager()

	access, refresh, err := tm.IssueSession(testStaffUser())
	require.NoError(t, err)

	mfaToken, err := tm.IssueMFAPending(testStaffUser(), models.MFAMethodTOTP)
	require.NoError(t, err)

	portalToken, err := tm.IssuePortal(testPortalUser())
	require.NoError(t, err)

	// MFA-pending token must never pass session verification.
	_, err = tm.ValidateSession(mfaToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	// Portal token must never pass staff-session verification and vice versa.
	_, err = tm.ValidateSession(portalToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	_, err = tm.ValidatePortal(access)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	// Refresh token is not an access token.
	_, err = tm.ValidateSession(refresh)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	_, err = tm.ValidateRefresh(access)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_IssueMFAPending_CarriesMethod(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.IssueMFAPending(testStaffUser(), models.MFAMethodTOTP)
	require.NoError(t, err)

	claims, err := tm.ValidateMFAPending(token)
	require.NoError(t, err)
	assert.Equal(t, models.MFAMethodTOTP, claims.Method)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestTokenManager_IssuePortal_RequiresContact(t *testing.T) {
	tm := newTestTokenManager()

	_, err := tm.IssuePortal(testStaffUser())
	assert.Error(t, err)

	token, err := tm.IssuePortal(testPortalUser())
	require.NoError(t, err)

	claims, err := tm.ValidatePortal(token)
	require.NoError(t, err)
	assert.Equal(t, "contact-42", claims.ContactID)
}

func TestTokenManager_ExpiredTokenRejected(t *testing.T) {
	tm := NewTokenManager("test-signing-key-with-enough-length", TokenExpiries{
		Access:  -1 * time.Minute,
		Refresh: 7 * 24 * time.Hour,
		MFA:     5 * time.Minute,
		Portal:  24 * time.Hour,
	})

	access, _, err := tm.IssueSession(testStaffUser())
	require.NoError(t, err)

	_, err = tm.ValidateSession(access)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_WrongKeyRejected(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("a-completely-different-signing-key!", tm.expiries)

	access, _, err := tm.IssueSession(testStaffUser())
	require.NoError(t, err)

	_, err = other.ValidateSession(access)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_GarbageRejected(t *testing.T) {
	tm := newTestTokenManager()

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tm.ValidateSession(tok)
		assert.ErrorIs(t, err, models.ErrTokenInvalid)
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortalHandler_Session(t *testing.T) {
	claims := &models.TokenClaims{
		Kind:             models.TokenKindPortal,
		UserID:           "user-9",
		Email:            "contact@example.org",
		Role:             models.RolePortal,
		ContactID:        "contact-42",
		RegisteredClaims: jwt.RegisteredClaims{},
	}

	req := httptest.NewRequest(http.MethodGet, "/portal/session", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
	rec := httptest.NewRecorder()

	NewPortalHandler().Session(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp PortalSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-9", resp.UserID)
	assert.Equal(t, "contact@example.org", resp.Email)
	assert.Equal(t, "contact-42", resp.ContactID)
}

func TestPortalHandler_Session_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/portal/session", nil)
	rec := httptest.NewRecorder()

	NewPortalHandler().Session(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

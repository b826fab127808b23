package handlers

import (
	"net/http"

	"github.com/openhearth/casekeeper/internal/auth"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

// PortalHandler serves the external contact portal. Routes behind it
// accept portal tokens only; staff sessions are rejected by the
// middleware before reaching here.
type PortalHandler struct{}

// NewPortalHandler creates a new PortalHandler
func NewPortalHandler() *PortalHandler {
	return &PortalHandler{}
}

// PortalSessionResponse describes the contact identity behind a portal token
type PortalSessionResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ContactID string `json:"contact_id"`
}

// Session returns the identity bound to the presented portal token
func (h *PortalHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, PortalSessionResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		ContactID: claims.ContactID,
	})
}

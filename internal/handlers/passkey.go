package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/services"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

// PasskeyServiceInterface defines the interface for passkey management operations
type PasskeyServiceInterface interface {
	BeginRegistration(ctx context.Context, userID string) (*services.RegistrationOptions, error)
	FinishRegistration(ctx context.Context, userID, challengeID, name, ipAddress string, response io.Reader) (*models.PasskeyCredential, error)
	ListPasskeys(ctx context.Context, userID string) ([]*models.PasskeyCredential, error)
	RenamePasskey(ctx context.Context, userID, passkeyID, name string) error
	DeletePasskey(ctx context.Context, userID, passkeyID, ipAddress string) error
}

// PasskeyHandler handles passkey registration and management for an
// authenticated user.
type PasskeyHandler struct {
	service  PasskeyServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewPasskeyHandler creates a new PasskeyHandler
func NewPasskeyHandler(service PasskeyServiceInterface, ipConfig *pkghttp.IPConfig) *PasskeyHandler {
	return &PasskeyHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// FinishRegistrationRequest represents the request body for finishing passkey registration
type FinishRegistrationRequest struct {
	ChallengeID string          `json:"challenge_id" validate:"required"`
	Name        string          `json:"name" validate:"omitempty,max=64"`
	Response    json.RawMessage `json:"response" validate:"required"`
}

// RenamePasskeyRequest represents the request body for renaming a passkey
type RenamePasskeyRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// PasskeyResponse is the wire form of a stored passkey. Key material is
// never exposed.
type PasskeyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Transports []string   `json:"transports"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toPasskeyResponse(cred *models.PasskeyCredential) PasskeyResponse {
	return PasskeyResponse{
		ID:         cred.ID,
		Name:       cred.Name,
		Transports: cred.Transports,
		LastUsedAt: cred.LastUsedAt,
		CreatedAt:  cred.CreatedAt,
	}
}

// BeginRegistration returns creation options for registering a passkey
func (h *PasskeyHandler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	opts, err := h.service.BeginRegistration(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"options":      opts.Options,
		"challenge_id": opts.ChallengeID,
	})
}

// FinishRegistration verifies the attestation and stores the passkey
func (h *PasskeyHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req FinishRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	cred, err := h.service.FinishRegistration(r.Context(), claims.UserID, req.ChallengeID, req.Name, ipAddress, bytes.NewReader(req.Response))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeInvalid):
			pkghttp.WriteBadRequest(w, "Registration could not be verified")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid credential response")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "This passkey is already registered")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toPasskeyResponse(cred))
}

// ListPasskeys returns the current user's passkeys
func (h *PasskeyHandler) ListPasskeys(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	creds, err := h.service.ListPasskeys(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]PasskeyResponse, len(creds))
	for i, cred := range creds {
		resp[i] = toPasskeyResponse(cred)
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// RenamePasskey updates the display name of a passkey
func (h *PasskeyHandler) RenamePasskey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req RenamePasskeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	passkeyID := chi.URLParam(r, "id")

	if err := h.service.RenamePasskey(r.Context(), claims.UserID, passkeyID, req.Name); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Passkey not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// DeletePasskey removes a passkey
func (h *PasskeyHandler) DeletePasskey(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	passkeyID := chi.URLParam(r, "id")
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.DeletePasskey(r.Context(), claims.UserID, passkeyID, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Passkey not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

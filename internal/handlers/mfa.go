package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/services"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

// TOTPServiceInterface defines the interface for TOTP lifecycle operations
type TOTPServiceInterface interface {
	BeginEnrollment(ctx context.Context, userID, ipAddress string) (*services.TOTPEnrollment, error)
	ConfirmEnrollment(ctx context.Context, userID, code, ipAddress string) error
	Disable(ctx context.Context, userID, password, code, ipAddress string) error
}

// MFAHandler handles TOTP enrollment lifecycle requests for an
// authenticated user.
type MFAHandler struct {
	service  TOTPServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service TOTPServiceInterface, ipConfig *pkghttp.IPConfig) *MFAHandler {
	return &MFAHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// ConfirmEnrollmentRequest represents the request body for confirming TOTP enrollment
type ConfirmEnrollmentRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// DisableTOTPRequest represents the request body for disabling TOTP.
// Disabling requires full re-authentication, not just a live session.
type DisableTOTPRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6"`
}

// EnrollmentResponse carries the setup material shown once during enrollment
type EnrollmentResponse struct {
	Secret    string `json:"secret"`
	URL       string `json:"url"`
	QRDataURL string `json:"qr_data_url"`
}

// BeginEnrollment starts TOTP enrollment for the current user
func (h *MFAHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	enrollment, err := h.service.BeginEnrollment(r.Context(), claims.UserID, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An authenticator app is already enabled")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:    enrollment.Secret,
		URL:       enrollment.URL,
		QRDataURL: enrollment.QRDataURL,
	})
}

// ConfirmEnrollment verifies the first code and activates the factor
func (h *MFAHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ConfirmEnrollment(r.Context(), claims.UserID, req.Code, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidMFACode):
			pkghttp.WriteBadRequest(w, "Invalid code")
		case errors.Is(err, models.ErrNoPendingEnrollment):
			pkghttp.WriteBadRequest(w, "No enrollment in progress")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

// DisableTOTP turns off the authenticator factor
func (h *MFAHandler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req DisableTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Disable(r.Context(), claims.UserID, req.Password, req.Code, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid password")
		case errors.Is(err, models.ErrInvalidMFACode):
			pkghttp.WriteBadRequest(w, "Invalid code")
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "Authenticator app is not enabled")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

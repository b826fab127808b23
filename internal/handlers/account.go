package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

// AccountServiceInterface defines the interface for account administration
type AccountServiceInterface interface {
	CreateUser(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error
}

// AccountHandler handles account administration requests.
type AccountHandler struct {
	service  AccountServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface, ipConfig *pkghttp.IPConfig) *AccountHandler {
	return &AccountHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=staff admin portal"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// UserResponse is the wire form of a created account
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateUser provisions a new account. Admin only.
func (h *AccountHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	user, err := h.service.CreateUser(r.Context(), req.Email, req.Password, req.Role, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, UserResponse{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	})
}

// ChangePassword replaces the current user's password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid password")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet requirements")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

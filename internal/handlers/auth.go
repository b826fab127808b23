package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/services"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

// LoginServiceInterface defines the interface for login orchestration
type LoginServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error)
	VerifyTOTP(ctx context.Context, mfaToken, code, ipAddress string) (*services.LoginResult, error)
	BeginPasskeyMFA(ctx context.Context, mfaToken string) (*services.AssertionOptions, error)
	FinishPasskeyMFA(ctx context.Context, mfaToken, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error)
	BeginPasskeyLogin(ctx context.Context, email string) (*services.AssertionOptions, error)
	FinishPasskeyLogin(ctx context.Context, email, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  LoginServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service LoginServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyTOTPRequest represents the request body for TOTP verification
type VerifyTOTPRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required,len=6"`
}

// PasskeyMFABeginRequest represents the request body for starting a passkey second factor
type PasskeyMFABeginRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
}

// PasskeyMFAFinishRequest represents the request body for finishing a passkey second factor
type PasskeyMFAFinishRequest struct {
	MFAToken    string          `json:"mfa_token" validate:"required"`
	ChallengeID string          `json:"challenge_id" validate:"required"`
	Response    json.RawMessage `json:"response" validate:"required"`
}

// PasskeyLoginBeginRequest represents the request body for starting a standalone passkey login
type PasskeyLoginBeginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasskeyLoginFinishRequest represents the request body for finishing a standalone passkey login
type PasskeyLoginFinishRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	ChallengeID string          `json:"challenge_id" validate:"required"`
	Response    json.RawMessage `json:"response" validate:"required"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginUser is the account summary returned with a completed login.
type LoginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse is the wire form of a login outcome
type LoginResponse struct {
	Status       string     `json:"status"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	MFAToken     string     `json:"mfa_token,omitempty"`
	MFAMethods   []string   `json:"mfa_methods,omitempty"`
	User         *LoginUser `json:"user,omitempty"`
}

func toLoginResponse(result *services.LoginResult) LoginResponse {
	resp := LoginResponse{
		Status:       result.Status,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		MFAToken:     result.MFAToken,
		MFAMethods:   result.MFAMethods,
	}

	// The user summary only appears once every factor has passed.
	if result.Status == services.LoginStatusOK && result.User != nil {
		resp.User = &LoginUser{
			ID:    result.User.ID,
			Email: result.User.Email,
			Role:  result.User.Role,
		}
	}

	return resp
}

// writeAuthFailure maps every factor failure to one indistinguishable
// rejection. Lockout, bad password, unknown account, bad code, and bad
// token all look identical from outside.
func writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrAccountLocked),
		errors.Is(err, models.ErrInvalidMFACode),
		errors.Is(err, models.ErrMFANotEnabled),
		errors.Is(err, models.ErrChallengeInvalid),
		errors.Is(err, models.ErrTokenInvalid),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrNoPasskeys):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login handles the password factor of a login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Normalize before validating so a padded email is not rejected.
	req.Email = normalizeEmail(req.Email)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// VerifyTOTP completes a pending login with an authenticator code
func (h *AuthHandler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyTOTPRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.VerifyTOTP(r.Context(), req.MFAToken, req.Code, ipAddress)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// BeginPasskeyMFA returns assertion options for a passkey second factor
func (h *AuthHandler) BeginPasskeyMFA(w http.ResponseWriter, r *http.Request) {
	var req PasskeyMFABeginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	opts, err := h.service.BeginPasskeyMFA(r.Context(), req.MFAToken)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"options":      opts.Options,
		"challenge_id": opts.ChallengeID,
	})
}

// FinishPasskeyMFA completes a pending login with a passkey assertion
func (h *AuthHandler) FinishPasskeyMFA(w http.ResponseWriter, r *http.Request) {
	var req PasskeyMFAFinishRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.FinishPasskeyMFA(r.Context(), req.MFAToken, req.ChallengeID, ipAddress, bytes.NewReader(req.Response))
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// BeginPasskeyLogin starts a standalone passkey login
func (h *AuthHandler) BeginPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	var req PasskeyLoginBeginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Email = normalizeEmail(req.Email)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	opts, err := h.service.BeginPasskeyLogin(r.Context(), req.Email)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"options":      opts.Options,
		"challenge_id": opts.ChallengeID,
	})
}

// FinishPasskeyLogin completes a standalone passkey login
func (h *AuthHandler) FinishPasskeyLogin(w http.ResponseWriter, r *http.Request) {
	var req PasskeyLoginFinishRequest

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

	result, err := h.service.FinishPasskeyLogin(r.Context(), req.Email, req.ChallengeID, ipAddress, bytes.NewReader(req.Response))
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

// RefreshToken exchanges a refresh token for a new session pair
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthFailure(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(result))
}

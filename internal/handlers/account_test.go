package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountHandler_CreateUser(t *testing.T) {
	svc := &MockAccountService{
		CreateUserFunc: func(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error) {
			assert.Equal(t, "new@example.org", email)
			assert.Equal(t, models.RoleStaff, role)
			return &models.UserCredential{ID: "user-2", Email: email, Role: role}, nil
		},
	}
	h := NewAccountHandler(svc, testIPConfig())

	rec := postJSONAs(t, h.CreateUser, "admin-1", `{"email":"  NEW@example.org ","password":"Str0ng&Secret!","role":"staff"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-2", resp.ID)
	assert.Equal(t, "new@example.org", resp.Email)
	assert.Equal(t, models.RoleStaff, resp.Role)
}

func TestAccountHandler_CreateUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "duplicate email",
			body:       `{"email":"new@example.org","password":"Str0ng&Secret!","role":"staff"}`,
			serviceErr: models.ErrConflict,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "weak password",
			body:       `{"email":"new@example.org","password":"weak","role":"staff"}`,
			serviceErr: models.ErrBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown role",
			body:       `{"email":"new@example.org","password":"Str0ng&Secret!","role":"superuser"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing email",
			body:       `{"password":"Str0ng&Secret!","role":"staff"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAccountService{
				CreateUserFunc: func(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error) {
					if tt.serviceErr == nil {
						t.Fatal("service must not be called for an invalid request")
					}
					return nil, tt.serviceErr
				},
			}
			h := NewAccountHandler(svc, testIPConfig())

			rec := postJSONAs(t, h.CreateUser, "admin-1", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAccountHandler_ChangePassword(t *testing.T) {
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "Old&Secret1!", currentPassword)
			assert.Equal(t, "N3w&Secret!!", newPassword)
			return nil
		},
	}
	h := NewAccountHandler(svc, testIPConfig())

	rec := postJSONAs(t, h.ChangePassword, "user-1", `{"current_password":"Old&Secret1!","new_password":"N3w&Secret!!"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "changed")
}

func TestAccountHandler_ChangePassword_Errors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"wrong current password", models.ErrInvalidCredentials, http.StatusUnauthorized},
		{"weak new password", models.ErrBadRequest, http.StatusBadRequest},
		{"account gone", models.ErrNotFound, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAccountService{
				ChangePasswordFunc: func(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
					return tt.serviceErr
				},
			}
			h := NewAccountHandler(svc, testIPConfig())

			rec := postJSONAs(t, h.ChangePassword, "user-1", `{"current_password":"old","new_password":"new"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

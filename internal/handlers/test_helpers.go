package handlers

import (
	"context"
	"io"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/services"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
)

func testIPConfig() *pkghttp.IPConfig {
	return &pkghttp.IPConfig{}
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc             func(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error)
	VerifyTOTPFunc        func(ctx context.Context, mfaToken, code, ipAddress string) (*services.LoginResult, error)
	BeginPasskeyMFAFunc   func(ctx context.Context, mfaToken string) (*services.AssertionOptions, error)
	FinishPasskeyMFAFunc  func(ctx context.Context, mfaToken, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error)
	BeginPasskeyLoginFunc func(ctx context.Context, email string) (*services.AssertionOptions, error)
	FinishPasskeyLoginFunc func(ctx context.Context, email, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error)
	RefreshFunc           func(ctx context.Context, refreshToken string) (*services.LoginResult, error)
}

func (m *MockLoginService) Login(ctx context.Context, email, password, ipAddress string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, ipAddress)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockLoginService) VerifyTOTP(ctx context.Context, mfaToken, code, ipAddress string) (*services.LoginResult, error) {
	if m.VerifyTOTPFunc != nil {
		return m.VerifyTOTPFunc(ctx, mfaToken, code, ipAddress)
	}
	return nil, models.ErrInvalidMFACode
}

func (m *MockLoginService) BeginPasskeyMFA(ctx context.Context, mfaToken string) (*services.AssertionOptions, error) {
	if m.BeginPasskeyMFAFunc != nil {
		return m.BeginPasskeyMFAFunc(ctx, mfaToken)
	}
	return nil, models.ErrTokenInvalid
}

func (m *MockLoginService) FinishPasskeyMFA(ctx context.Context, mfaToken, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error) {
	if m.FinishPasskeyMFAFunc != nil {
		return m.FinishPasskeyMFAFunc(ctx, mfaToken, challengeID, ipAddress, response)
	}
	return nil, models.ErrChallengeInvalid
}

func (m *MockLoginService) BeginPasskeyLogin(ctx context.Context, email string) (*services.AssertionOptions, error) {
	if m.BeginPasskeyLoginFunc != nil {
		return m.BeginPasskeyLoginFunc(ctx, email)
	}
	return nil, models.ErrNoPasskeys
}

func (m *MockLoginService) FinishPasskeyLogin(ctx context.Context, email, challengeID, ipAddress string, response io.Reader) (*services.LoginResult, error) {
	if m.FinishPasskeyLoginFunc != nil {
		return m.FinishPasskeyLoginFunc(ctx, email, challengeID, ipAddress, response)
	}
	return nil, models.ErrChallengeInvalid
}

func (m *MockLoginService) Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, models.ErrTokenInvalid
}

// MockTOTPService implements TOTPServiceInterface for testing
type MockTOTPService struct {
	BeginEnrollmentFunc   func(ctx context.Context, userID, ipAddress string) (*services.TOTPEnrollment, error)
	ConfirmEnrollmentFunc func(ctx context.Context, userID, code, ipAddress string) error
	DisableFunc           func(ctx context.Context, userID, password, code, ipAddress string) error
}

func (m *MockTOTPService) BeginEnrollment(ctx context.Context, userID, ipAddress string) (*services.TOTPEnrollment, error) {
	if m.BeginEnrollmentFunc != nil {
		return m.BeginEnrollmentFunc(ctx, userID, ipAddress)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTOTPService) ConfirmEnrollment(ctx context.Context, userID, code, ipAddress string) error {
	if m.ConfirmEnrollmentFunc != nil {
		return m.ConfirmEnrollmentFunc(ctx, userID, code, ipAddress)
	}
	return nil
}

func (m *MockTOTPService) Disable(ctx context.Context, userID, password, code, ipAddress string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID, password, code, ipAddress)
	}
	return nil
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	CreateUserFunc     func(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error)
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error
}

func (m *MockAccountService) CreateUser(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, email, password, role, ipAddress)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, ipAddress)
	}
	return nil
}

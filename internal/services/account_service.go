package services

import (
	"context"
	"log/slog"

	"github.com/openhearth/casekeeper/internal/models"
	pkgauth "github.com/openhearth/casekeeper/pkg/auth"
	"github.com/openhearth/casekeeper/pkg/logger"
)

// AccountService handles account administration: staff-created users
// and self-service password changes.
type AccountService struct {
	userRepo UserRepository
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(userRepo UserRepository, audit *logger.AuditLogger, logger *slog.Logger) *AccountService {
	return &AccountService{
		userRepo: userRepo,
		audit:    audit,
		logger:   logger,
	}
}

// CreateUser provisions a new account. The password must satisfy the
// policy; a duplicate email surfaces as ErrConflict from the store.
func (s *AccountService) CreateUser(ctx context.Context, email, password, role, ipAddress string) (*models.UserCredential, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.userRepo.Create(ctx, &models.UserCredential{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogCredentialAction("user_created", user.ID, ipAddress, map[string]string{
		"email": user.Email,
		"role":  user.Role,
	})

	return user, nil
}

// ChangePassword replaces the caller's password. The current password
// is required, so a hijacked session cannot take over the account.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "password_change",
			UserID:        userID,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "invalid_password",
		})
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.audit.LogCredentialAction("password_changed", userID, ipAddress, nil)
	return nil
}

package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	pkgauth "github.com/openhearth/casekeeper/pkg/auth"
	"github.com/openhearth/casekeeper/pkg/crypto"
	"github.com/openhearth/casekeeper/pkg/logger"
)

// UserRepository defines the interface for user credential database operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.UserCredential, error)
	GetByEmail(ctx context.Context, email string) (*models.UserCredential, error)
	Create(ctx context.Context, user *models.UserCredential) (*models.UserCredential, error)
	SetPendingTOTPSecret(ctx context.Context, userID, envelope string) error
	PromoteTOTPSecret(ctx context.Context, userID, pendingEnvelope string) error
	ClearTOTP(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// TOTPService drives the authenticator-app enrollment lifecycle:
// pending secret, confirmed promotion, verification, disablement.
// Secrets only exist in plaintext inside a request; at rest they are
// sealed by the cipher.
type TOTPService struct {
	userRepo UserRepository
	totpMgr  *auth.TOTPManager
	cipher   *crypto.SecretCipher
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewTOTPService creates a new TOTPService
func NewTOTPService(
	userRepo UserRepository,
	totpMgr *auth.TOTPManager,
	cipher *crypto.SecretCipher,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *TOTPService {
	return &TOTPService{
		userRepo: userRepo,
		totpMgr:  totpMgr,
		cipher:   cipher,
		audit:    audit,
		logger:   logger,
	}
}

// TOTPEnrollment is returned from BeginEnrollment for the setup screen.
type TOTPEnrollment struct {
	Secret    string
	URL       string
	QRDataURL string
}

// BeginEnrollment generates a fresh secret and stores it as pending.
// The factor stays inactive until the user proves possession with a
// valid code. Calling again before confirmation replaces the earlier
// pending secret.
func (s *TOTPService) BeginEnrollment(ctx context.Context, userID, ipAddress string) (*TOTPEnrollment, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.TOTPEnabled {
		return nil, models.ErrConflict
	}

	key, err := s.totpMgr.GenerateKey(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	envelope, err := s.cipher.Encrypt(key.Secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.userRepo.SetPendingTOTPSecret(ctx, userID, envelope); err != nil {
		return nil, err
	}

	s.audit.LogCredentialAction("totp_enrollment_started", userID, ipAddress, nil)

	return &TOTPEnrollment{
		Secret:    key.Secret,
		URL:       key.URL,
		QRDataURL: key.QRDataURL,
	}, nil
}

// ConfirmEnrollment verifies the first code against the pending secret
// and promotes it to active. The promotion pins the exact envelope that
// was verified, so a concurrent re-enrollment cannot be confirmed by a
// stale code.
func (s *TOTPService) ConfirmEnrollment(ctx context.Context, userID, code, ipAddress string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.TOTPPendingSecret == nil {
		return models.ErrNoPendingEnrollment
	}

	secret, err := s.cipher.Decrypt(*user.TOTPPendingSecret)
	if err != nil {
		s.logger.Error("failed to decrypt pending TOTP secret",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !s.totpMgr.Validate(secret, code) {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "totp_enrollment_confirm",
			UserID:        userID,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "invalid_code",
		})
		return models.ErrInvalidMFACode
	}

	if err := s.userRepo.PromoteTOTPSecret(ctx, userID, *user.TOTPPendingSecret); err != nil {
		return err
	}

	s.audit.LogCredentialAction("totp_enabled", userID, ipAddress, nil)
	return nil
}

// Verify checks a code against the active secret during login.
func (s *TOTPService) Verify(ctx context.Context, userID, code string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return models.ErrMFANotEnabled
	}

	secret, err := s.cipher.Decrypt(*user.TOTPSecret)
	if err != nil {
		// A failed decrypt means tampering, corruption, or a key
		// mismatch. Never fall through to accepting the code.
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !s.totpMgr.Validate(secret, code) {
		return models.ErrInvalidMFACode
	}

	return nil
}

// Disable turns the factor off. Requires the account password and a
// valid current code so a hijacked session cannot silently strip MFA.
func (s *TOTPService) Disable(ctx context.Context, userID, password, code, ipAddress string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "totp_disable",
			UserID:        userID,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "invalid_password",
		})
		return models.ErrInvalidCredentials
	}

	if err := s.Verify(ctx, userID, code); err != nil {
		if errors.Is(err, models.ErrInvalidMFACode) {
			s.audit.LogAuthAttempt(logger.AuditEvent{
				EventType:     "totp_disable",
				UserID:        userID,
				IPAddress:     ipAddress,
				Success:       false,
				FailureReason: "invalid_code",
			})
		}
		return err
	}

	if err := s.userRepo.ClearTOTP(ctx, userID); err != nil {
		return err
	}

	s.audit.LogCredentialAction("totp_disabled", userID, ipAddress, nil)
	return nil
}

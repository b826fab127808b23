package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuditLogger() *logger.AuditLogger {
	return logger.NewAuditLogger(testLogger())
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc              func(ctx context.Context, id string) (*models.UserCredential, error)
	GetByEmailFunc           func(ctx context.Context, email string) (*models.UserCredential, error)
	CreateFunc               func(ctx context.Context, user *models.UserCredential) (*models.UserCredential, error)
	SetPendingTOTPSecretFunc func(ctx context.Context, userID, envelope string) error
	PromoteTOTPSecretFunc    func(ctx context.Context, userID, pendingEnvelope string) error
	ClearTOTPFunc            func(ctx context.Context, userID string) error
	UpdatePasswordFunc       func(ctx context.Context, userID, passwordHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.UserCredential, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.UserCredential, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.UserCredential) (*models.UserCredential, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetPendingTOTPSecret(ctx context.Context, userID, envelope string) error {
	if m.SetPendingTOTPSecretFunc != nil {
		return m.SetPendingTOTPSecretFunc(ctx, userID, envelope)
	}
	return nil
}

func (m *MockUserRepository) PromoteTOTPSecret(ctx context.Context, userID, pendingEnvelope string) error {
	if m.PromoteTOTPSecretFunc != nil {
		return m.PromoteTOTPSecretFunc(ctx, userID, pendingEnvelope)
	}
	return nil
}

func (m *MockUserRepository) ClearTOTP(ctx context.Context, userID string) error {
	if m.ClearTOTPFunc != nil {
		return m.ClearTOTPFunc(ctx, userID)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, userID, passwordHash)
	}
	return nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordAttemptFunc         func(ctx context.Context, attempt *models.LoginAttempt) error
	GetFailedAttemptCountFunc func(ctx context.Context, email string, since time.Time) (int, error)
	GetOldestFailureTimeFunc  func(ctx context.Context, email string, since time.Time) (*time.Time, error)
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountFunc != nil {
		return m.GetFailedAttemptCountFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptRepository) GetOldestFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	if m.GetOldestFailureTimeFunc != nil {
		return m.GetOldestFailureTimeFunc(ctx, email, since)
	}
	return nil, nil
}

// MockPasskeyRepository implements PasskeyRepository for testing
type MockPasskeyRepository struct {
	CreateFunc            func(ctx context.Context, cred *models.PasskeyCredential) (*models.PasskeyCredential, error)
	GetByUserIDFunc       func(ctx context.Context, userID string) ([]*models.PasskeyCredential, error)
	GetByCredentialIDFunc func(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	UpdateSignCountFunc   func(ctx context.Context, credentialID []byte, signCount uint32) error
	RenameFunc            func(ctx context.Context, id, userID, name string) error
	DeleteFunc            func(ctx context.Context, id, userID string) error
}

func (m *MockPasskeyRepository) Create(ctx context.Context, cred *models.PasskeyCredential) (*models.PasskeyCredential, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cred)
	}
	return cred, nil
}

func (m *MockPasskeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return []*models.PasskeyCredential{}, nil
}

func (m *MockPasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	if m.GetByCredentialIDFunc != nil {
		return m.GetByCredentialIDFunc(ctx, credentialID)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasskeyRepository) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	if m.UpdateSignCountFunc != nil {
		return m.UpdateSignCountFunc(ctx, credentialID, signCount)
	}
	return nil
}

func (m *MockPasskeyRepository) Rename(ctx context.Context, id, userID, name string) error {
	if m.RenameFunc != nil {
		return m.RenameFunc(ctx, id, userID, name)
	}
	return nil
}

func (m *MockPasskeyRepository) Delete(ctx context.Context, id, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, userID)
	}
	return nil
}

// MockChallengeRepository implements ChallengeRepository for testing
type MockChallengeRepository struct {
	CreateFunc       func(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error)
	ConsumeFunc      func(ctx context.Context, id string) (*models.CeremonyChallenge, error)
	DeleteByUserFunc func(ctx context.Context, userID string, ceremonyType models.CeremonyType) error
}

func (m *MockChallengeRepository) Create(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, challenge)
	}
	challenge.ID = "challenge-1"
	return challenge, nil
}

func (m *MockChallengeRepository) Consume(ctx context.Context, id string) (*models.CeremonyChallenge, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeRepository) DeleteByUser(ctx context.Context, userID string, ceremonyType models.CeremonyType) error {
	if m.DeleteByUserFunc != nil {
		return m.DeleteByUserFunc(ctx, userID, ceremonyType)
	}
	return nil
}

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/openhearth/casekeeper/internal/models"
)

// LoginAttemptRepository defines the interface for login attempt database operations
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error)
	GetOldestFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error)
}

// LockoutConfig holds configuration for account lockout behavior
type LockoutConfig struct {
	Threshold int           // consecutive failures before lockout
	Window    time.Duration // sliding window for counting failures
}

// LockoutService tracks login attempts and enforces account lockout.
// Failures are counted per email within the window; a successful login
// resets the effective count.
type LockoutService struct {
	repo   LoginAttemptRepository
	config LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LoginAttemptRepository, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// CheckLockout reports whether the account is currently locked and, if
// so, how long until the oldest qualifying failure ages out of the
// window. Database errors fail open: availability wins over strictness
// for read-side checks, the threshold itself still fails closed.
func (s *LockoutService) CheckLockout(ctx context.Context, email string) (bool, time.Duration, error) {
	since := time.Now().Add(-s.config.Window)

	count, err := s.repo.GetFailedAttemptCount(ctx, email, since)
	if err != nil {
		s.logger.Error("failed to count login failures", slog.Any("error", err))
		return false, 0, nil
	}

	if count < s.config.Threshold {
		return false, 0, nil
	}

	retryAfter := s.config.Window
	oldest, err := s.repo.GetOldestFailureTime(ctx, email, since)
	if err == nil && oldest != nil {
		retryAfter = time.Until(oldest.Add(s.config.Window))
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	s.logger.Warn("account locked out",
		slog.String("email", email),
		slog.Int("failed_attempts", count),
		slog.Duration("retry_after", retryAfter))

	return true, retryAfter, nil
}

// RecordAttempt appends a login attempt outcome. Attempt rows are kept
// for twice the lockout window and pruned by the cleanup manager.
func (s *LockoutService) RecordAttempt(ctx context.Context, email string, userID *string, ipAddress string, success bool) error {
	attempt := &models.LoginAttempt{
		Email:       email,
		UserID:      userID,
		IPAddress:   ipAddress,
		Success:     success,
		AttemptTime: time.Now(),
		ExpiresAt:   time.Now().Add(s.config.Window * 2),
	}

	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("email", email),
			slog.Any("error", err))
		return err
	}
	return nil
}

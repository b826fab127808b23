package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockoutService(repo *MockLoginAttemptRepository) *LockoutService {
	return NewLockoutService(repo, LockoutConfig{
		Threshold: 5,
		Window:    15 * time.Minute,
	}, testLogger())
}

func TestLockoutService_CheckLockout(t *testing.T) {
	tests := []struct {
		name        string
		failedCount int
		wantLocked  bool
	}{
		{"no failures", 0, false},
		{"below threshold", 4, false},
		{"at threshold", 5, true},
		{"above threshold", 9, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockLoginAttemptRepository{
				GetFailedAttemptCountFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
					return tt.failedCount, nil
				},
			}

			locked, _, err := newTestLockoutService(repo).CheckLockout(context.Background(), "user@example.org")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLocked, locked)
		})
	}
}

func TestLockoutService_CheckLockout_RetryAfter(t *testing.T) {
	oldest := time.Now().Add(-10 * time.Minute)
	repo := &MockLoginAttemptRepository{
		GetFailedAttemptCountFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			return 5, nil
		},
		GetOldestFailureTimeFunc: func(ctx context.Context, email string, since time.Time) (*time.Time, error) {
			return &oldest, nil
		},
	}

	locked, retryAfter, err := newTestLockoutService(repo).CheckLockout(context.Background(), "user@example.org")
	require.NoError(t, err)
	assert.True(t, locked)

	// Oldest failure is 10 minutes old in a 15 minute window, so the
	// lock lifts in about 5 minutes.
	assert.InDelta(t, (5 * time.Minute).Seconds(), retryAfter.Seconds(), 5)
}

func TestLockoutService_CheckLockout_FailsOpenOnDBError(t *testing.T) {
	repo := &MockLoginAttemptRepository{
		GetFailedAttemptCountFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			return 0, errors.New("connection refused")
		},
	}

	locked, _, err := newTestLockoutService(repo).CheckLockout(context.Background(), "user@example.org")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockoutService_RecordAttempt(t *testing.T) {
	var recorded *models.LoginAttempt
	repo := &MockLoginAttemptRepository{
		RecordAttemptFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			recorded = attempt
			return nil
		},
	}

	userID := "user-1"
	err := newTestLockoutService(repo).RecordAttempt(context.Background(), "user@example.org", &userID, "192.0.2.1", false)
	require.NoError(t, err)

	require.NotNil(t, recorded)
	assert.Equal(t, "user@example.org", recorded.Email)
	assert.Equal(t, "192.0.2.1", recorded.IPAddress)
	assert.False(t, recorded.Success)
	assert.True(t, recorded.ExpiresAt.After(recorded.AttemptTime))
}

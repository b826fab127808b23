package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	db, err := SetupTestDatabase(ctx)
	if err != nil {
		// No container runtime available: skip the suite.
		os.Exit(0)
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetDB(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func TestChallengeRepository_ConsumeIsSingleUse(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "staff@example.org", "Str0ng&Secret!")
	require.NoError(t, err)

	repo := repositories.NewChallengeRepository(testDB.DB)

	created, err := repo.Create(ctx, &models.CeremonyChallenge{
		UserID:      &user.ID,
		Challenge:   []byte("challenge-bytes"),
		Type:        models.CeremonyAuthentication,
		SessionData: []byte(`{"challenge":"abc"}`),
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)

	consumed, err := repo.Consume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, consumed.ID)
	assert.Equal(t, []byte("challenge-bytes"), consumed.Challenge)

	// The second consume finds nothing: the row is gone.
	_, err = repo.Consume(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChallengeRepository_DeleteByUserSupersedes(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "staff@example.org", "Str0ng&Secret!")
	require.NoError(t, err)

	repo := repositories.NewChallengeRepository(testDB.DB)

	old, err := repo.Create(ctx, &models.CeremonyChallenge{
		UserID:      &user.ID,
		Challenge:   []byte("old"),
		Type:        models.CeremonyRegistration,
		SessionData: []byte(`{}`),
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByUser(ctx, user.ID, models.CeremonyRegistration))

	_, err = repo.Consume(ctx, old.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLoginAttemptRepository_SuccessResetsFailureCount(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	repo := repositories.NewLoginAttemptRepository(testDB.DB)
	email := "staff@example.org"
	since := time.Now().Add(-15 * time.Minute)

	record := func(success bool, offset time.Duration) {
		t.Helper()
		require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
			Email:       email,
			IPAddress:   "192.0.2.1",
			Success:     success,
			AttemptTime: time.Now().Add(offset),
			ExpiresAt:   time.Now().Add(30 * time.Minute),
		}))
	}

	record(false, -10*time.Minute)
	record(false, -9*time.Minute)
	record(false, -8*time.Minute)

	count, err := repo.GetFailedAttemptCount(ctx, email, since)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// A success wipes the slate: earlier failures no longer count.
	record(true, -7*time.Minute)

	count, err = repo.GetFailedAttemptCount(ctx, email, since)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	record(false, -5*time.Minute)
	record(false, -4*time.Minute)

	count, err = repo.GetFailedAttemptCount(ctx, email, since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	oldest, err := repo.GetOldestFailureTime(ctx, email, since)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.WithinDuration(t, time.Now().Add(-5*time.Minute), *oldest, 10*time.Second)
}

func TestLoginAttemptRepository_WindowExcludesOldFailures(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	repo := repositories.NewLoginAttemptRepository(testDB.DB)
	email := "staff@example.org"

	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       email,
		Success:     false,
		AttemptTime: time.Now().Add(-20 * time.Minute),
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}))
	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       email,
		Success:     false,
		AttemptTime: time.Now().Add(-1 * time.Minute),
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}))

	count, err := repo.GetFailedAttemptCount(ctx, email, time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUserRepository_PromoteTOTPSecret(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "staff@example.org", "Str0ng&Secret!")
	require.NoError(t, err)

	repo := repositories.NewUserRepository(testDB.DB)

	require.NoError(t, repo.SetPendingTOTPSecret(ctx, user.ID, "envelope-1"))

	// Promotion with a stale envelope fails: someone re-enrolled since.
	require.NoError(t, repo.SetPendingTOTPSecret(ctx, user.ID, "envelope-2"))
	err = repo.PromoteTOTPSecret(ctx, user.ID, "envelope-1")
	assert.ErrorIs(t, err, models.ErrNoPendingEnrollment)

	require.NoError(t, repo.PromoteTOTPSecret(ctx, user.ID, "envelope-2"))

	updated, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, updated.TOTPEnabled)
	require.NotNil(t, updated.TOTPSecret)
	assert.Equal(t, "envelope-2", *updated.TOTPSecret)
	assert.Nil(t, updated.TOTPPendingSecret)
	assert.NotNil(t, updated.TOTPEnabledAt)

	// Promoting again with nothing pending fails.
	err = repo.PromoteTOTPSecret(ctx, user.ID, "envelope-2")
	assert.ErrorIs(t, err, models.ErrNoPendingEnrollment)
}

func TestUserRepository_ClearTOTP(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "staff@example.org", "Str0ng&Secret!")
	require.NoError(t, err)

	repo := repositories.NewUserRepository(testDB.DB)
	require.NoError(t, repo.SetPendingTOTPSecret(ctx, user.ID, "envelope"))
	require.NoError(t, repo.PromoteTOTPSecret(ctx, user.ID, "envelope"))
	require.NoError(t, repo.ClearTOTP(ctx, user.ID))

	updated, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, updated.TOTPEnabled)
	assert.Nil(t, updated.TOTPSecret)
	assert.Nil(t, updated.TOTPPendingSecret)
	assert.Nil(t, updated.TOTPEnabledAt)
}

func TestPasskeyRepository_Lifecycle(t *testing.T) {
	resetDB(t)
	ctx := context.Background()

	user, err := SeedUser(ctx, testDB.Pool, "staff@example.org", "Str0ng&Secret!")
	require.NoError(t, err)

	repo := repositories.NewPasskeyRepository(testDB.DB)

	created, err := repo.Create(ctx, &models.PasskeyCredential{
		UserID:          user.ID,
		CredentialID:    []byte("credential-1"),
		PublicKey:       []byte("public-key"),
		AttestationType: "none",
		Transports:      []string{"internal"},
		Name:            "Work laptop",
	})
	require.NoError(t, err)

	// Duplicate credential ids are rejected.
	_, err = repo.Create(ctx, &models.PasskeyCredential{
		UserID:       user.ID,
		CredentialID: []byte("credential-1"),
		PublicKey:    []byte("other-key"),
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	require.NoError(t, repo.UpdateSignCount(ctx, []byte("credential-1"), 7))

	fetched, err := repo.GetByCredentialID(ctx, []byte("credential-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), fetched.SignCount)
	assert.NotNil(t, fetched.LastUsedAt)

	require.NoError(t, repo.Rename(ctx, created.ID, user.ID, "Yubikey"))

	// Another user cannot delete it.
	other, err := SeedUser(ctx, testDB.Pool, "other@example.org", "Str0ng&Secret!")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Delete(ctx, created.ID, other.ID), models.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, created.ID, user.ID))

	creds, err := repo.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPasskeyService(t *testing.T, userRepo *MockUserRepository, passkeyRepo *MockPasskeyRepository, challengeRepo *MockChallengeRepository) *PasskeyService {
	t.Helper()

	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "CaseKeeper Test",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:8080"},
	})
	require.NoError(t, err)

	return NewPasskeyService(userRepo, passkeyRepo, challengeRepo, webAuthn, 5*time.Minute, testAuditLogger(), testLogger())
}

func passkeyTestUser() *models.UserCredential {
	return &models.UserCredential{ID: "user-1", Email: "staff@example.org"}
}

func userRepoWith(user *models.UserCredential) *MockUserRepository {
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.UserCredential, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.UserCredential, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
}

func TestPasskeyService_BeginRegistration(t *testing.T) {
	var stored *models.CeremonyChallenge
	var supersededType models.CeremonyType
	challengeRepo := &MockChallengeRepository{
		CreateFunc: func(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error) {
			challenge.ID = "challenge-1"
			stored = challenge
			return challenge, nil
		},
		DeleteByUserFunc: func(ctx context.Context, userID string, ceremonyType models.CeremonyType) error {
			supersededType = ceremonyType
			return nil
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), &MockPasskeyRepository{}, challengeRepo)

	opts, err := svc.BeginRegistration(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "challenge-1", opts.ChallengeID)
	assert.NotEmpty(t, opts.Options.Response.Challenge)
	assert.Equal(t, "localhost", opts.Options.Response.RelyingParty.ID)

	require.NotNil(t, stored)
	assert.Equal(t, models.CeremonyRegistration, stored.Type)
	assert.Equal(t, "user-1", *stored.UserID)
	assert.True(t, stored.ExpiresAt.After(time.Now()))
	assert.Equal(t, models.CeremonyRegistration, supersededType)

	// Stored session round-trips through JSON.
	var session webauthn.SessionData
	require.NoError(t, json.Unmarshal(stored.SessionData, &session))
	assert.NotEmpty(t, session.Challenge)
}

func TestPasskeyService_BeginRegistration_ExcludesExisting(t *testing.T) {
	passkeyRepo := &MockPasskeyRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
			return []*models.PasskeyCredential{
				{ID: "pk-1", UserID: userID, CredentialID: []byte("existing-credential")},
			}, nil
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), passkeyRepo, &MockChallengeRepository{})

	opts, err := svc.BeginRegistration(context.Background(), "user-1")
	require.NoError(t, err)

	require.Len(t, opts.Options.Response.CredentialExcludeList, 1)
	assert.Equal(t, []byte("existing-credential"), []byte(opts.Options.Response.CredentialExcludeList[0].CredentialID))
}

func TestPasskeyService_BeginLogin(t *testing.T) {
	passkeyRepo := &MockPasskeyRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
			return []*models.PasskeyCredential{
				{ID: "pk-1", UserID: userID, CredentialID: []byte("cred-1"), PublicKey: []byte("key")},
			}, nil
		},
	}

	var stored *models.CeremonyChallenge
	challengeRepo := &MockChallengeRepository{
		CreateFunc: func(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error) {
			challenge.ID = "challenge-2"
			stored = challenge
			return challenge, nil
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), passkeyRepo, challengeRepo)

	opts, err := svc.BeginLogin(context.Background(), "staff@example.org")
	require.NoError(t, err)

	assert.Equal(t, "challenge-2", opts.ChallengeID)
	require.Len(t, opts.Options.Response.AllowedCredentials, 1)

	require.NotNil(t, stored)
	assert.Equal(t, models.CeremonyAuthentication, stored.Type)
}

func TestPasskeyService_BeginLogin_NoPasskeys(t *testing.T) {
	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), &MockPasskeyRepository{}, &MockChallengeRepository{})

	_, err := svc.BeginLogin(context.Background(), "staff@example.org")
	assert.ErrorIs(t, err, models.ErrNoPasskeys)
}

func TestPasskeyService_FinishLogin_ChallengeValidation(t *testing.T) {
	userID := "user-1"
	otherUser := "user-2"
	validSession, err := json.Marshal(&webauthn.SessionData{Challenge: "abc", UserID: []byte(userID)})
	require.NoError(t, err)

	tests := []struct {
		name      string
		challenge *models.CeremonyChallenge
		consumeErr error
	}{
		{
			name:       "unknown challenge",
			consumeErr: models.ErrNotFound,
		},
		{
			name: "wrong ceremony type",
			challenge: &models.CeremonyChallenge{
				ID: "ch-1", UserID: &userID, Type: models.CeremonyRegistration,
				SessionData: validSession, ExpiresAt: time.Now().Add(time.Minute),
			},
		},
		{
			name: "challenge owned by another user",
			challenge: &models.CeremonyChallenge{
				ID: "ch-1", UserID: &otherUser, Type: models.CeremonyAuthentication,
				SessionData: validSession, ExpiresAt: time.Now().Add(time.Minute),
			},
		},
		{
			name: "expired challenge",
			challenge: &models.CeremonyChallenge{
				ID: "ch-1", UserID: &userID, Type: models.CeremonyAuthentication,
				SessionData: validSession, ExpiresAt: time.Now().Add(-time.Minute),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challengeRepo := &MockChallengeRepository{
				ConsumeFunc: func(ctx context.Context, id string) (*models.CeremonyChallenge, error) {
					if tt.consumeErr != nil {
						return nil, tt.consumeErr
					}
					return tt.challenge, nil
				},
			}

			svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), &MockPasskeyRepository{}, challengeRepo)

			_, err := svc.FinishLogin(context.Background(), "staff@example.org", "ch-1", strings.NewReader("{}"))
			assert.ErrorIs(t, err, models.ErrChallengeInvalid)
		})
	}
}

func TestPasskeyService_FinishLogin_SingleUse(t *testing.T) {
	// After the atomic consume removes the row, a second finish with the
	// same challenge id sees not-found and is rejected.
	consumed := false
	userID := "user-1"
	session, err := json.Marshal(&webauthn.SessionData{Challenge: "abc", UserID: []byte(userID)})
	require.NoError(t, err)

	challengeRepo := &MockChallengeRepository{
		ConsumeFunc: func(ctx context.Context, id string) (*models.CeremonyChallenge, error) {
			if consumed {
				return nil, models.ErrNotFound
			}
			consumed = true
			return &models.CeremonyChallenge{
				ID: id, UserID: &userID, Type: models.CeremonyAuthentication,
				SessionData: session, ExpiresAt: time.Now().Add(time.Minute),
			}, nil
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), &MockPasskeyRepository{}, challengeRepo)

	// First attempt consumes the challenge. The malformed body fails
	// later in parsing, but the challenge is already gone.
	_, err = svc.FinishLogin(context.Background(), "staff@example.org", "ch-1", strings.NewReader("{}"))
	assert.Error(t, err)

	_, err = svc.FinishLogin(context.Background(), "staff@example.org", "ch-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, models.ErrChallengeInvalid)
}

func TestPasskeyService_DeletePasskey(t *testing.T) {
	var deletedID, deletedUser string
	passkeyRepo := &MockPasskeyRepository{
		DeleteFunc: func(ctx context.Context, id, userID string) error {
			deletedID, deletedUser = id, userID
			return nil
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), passkeyRepo, &MockChallengeRepository{})

	require.NoError(t, svc.DeletePasskey(context.Background(), "user-1", "pk-1", "192.0.2.1"))
	assert.Equal(t, "pk-1", deletedID)
	assert.Equal(t, "user-1", deletedUser)
}

func TestPasskeyService_RenamePasskey_NotFound(t *testing.T) {
	passkeyRepo := &MockPasskeyRepository{
		RenameFunc: func(ctx context.Context, id, userID, name string) error {
			return models.ErrNotFound
		},
	}

	svc := newTestPasskeyService(t, userRepoWith(passkeyTestUser()), passkeyRepo, &MockChallengeRepository{})

	err := svc.RenamePasskey(context.Background(), "user-1", "missing", "Work laptop")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

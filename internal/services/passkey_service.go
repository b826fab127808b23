package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/pkg/logger"
)

// PasskeyRepository defines the interface for passkey credential database operations
type PasskeyRepository interface {
	Create(ctx context.Context, cred *models.PasskeyCredential) (*models.PasskeyCredential, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.PasskeyCredential, error)
	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
	Rename(ctx context.Context, id, userID, name string) error
	Delete(ctx context.Context, id, userID string) error
}

// ChallengeRepository defines the interface for ceremony challenge database operations
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error)
	Consume(ctx context.Context, id string) (*models.CeremonyChallenge, error)
	DeleteByUser(ctx context.Context, userID string, ceremonyType models.CeremonyType) error
}

// PasskeyService runs WebAuthn registration and authentication
// ceremonies. Challenges are single-use: finishing a ceremony consumes
// the stored challenge atomically, so a replayed response can never
// verify twice.
type PasskeyService struct {
	userRepo      UserRepository
	passkeyRepo   PasskeyRepository
	challengeRepo ChallengeRepository
	webAuthn      *webauthn.WebAuthn
	challengeTTL  time.Duration
	audit         *logger.AuditLogger
	logger        *slog.Logger
}

// NewPasskeyService creates a new PasskeyService
func NewPasskeyService(
	userRepo UserRepository,
	passkeyRepo PasskeyRepository,
	challengeRepo ChallengeRepository,
	webAuthn *webauthn.WebAuthn,
	challengeTTL time.Duration,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *PasskeyService {
	return &PasskeyService{
		userRepo:      userRepo,
		passkeyRepo:   passkeyRepo,
		challengeRepo: challengeRepo,
		webAuthn:      webAuthn,
		challengeTTL:  challengeTTL,
		audit:         audit,
		logger:        logger,
	}
}

// webAuthnUser adapts a UserCredential and its stored passkeys to the
// webauthn.User interface.
type webAuthnUser struct {
	user  *models.UserCredential
	creds []webauthn.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.user.Email
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.user.Email
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

func toWebAuthnCredential(cred *models.PasskeyCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(cred.Transports))
	for i, t := range cred.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}

	return webauthn.Credential{
		ID:              cred.CredentialID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			AAGUID:    cred.AAGUID,
			SignCount: cred.SignCount,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: cred.BackupEligible,
			BackupState:    cred.BackupState,
		},
	}
}

func (s *PasskeyService) loadWebAuthnUser(ctx context.Context, user *models.UserCredential) (*webAuthnUser, error) {
	dbCreds, err := s.passkeyRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	creds := make([]webauthn.Credential, len(dbCreds))
	for i, cred := range dbCreds {
		creds[i] = toWebAuthnCredential(cred)
	}

	return &webAuthnUser{user: user, creds: creds}, nil
}

func (s *PasskeyService) storeChallenge(ctx context.Context, userID string, ceremonyType models.CeremonyType, session *webauthn.SessionData) (string, error) {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	// A fresh options call supersedes any outstanding challenge of the
	// same type for this user.
	if err := s.challengeRepo.DeleteByUser(ctx, userID, ceremonyType); err != nil {
		return "", err
	}

	challenge, err := s.challengeRepo.Create(ctx, &models.CeremonyChallenge{
		UserID:      &userID,
		Challenge:   []byte(session.Challenge),
		Type:        ceremonyType,
		SessionData: sessionJSON,
		ExpiresAt:   time.Now().Add(s.challengeTTL),
	})
	if err != nil {
		return "", err
	}

	return challenge.ID, nil
}

// consumeChallenge atomically claims a stored challenge and validates
// ownership, ceremony type, and expiry. Any mismatch is reported as
// ErrChallengeInvalid without detail.
func (s *PasskeyService) consumeChallenge(ctx context.Context, challengeID, userID string, ceremonyType models.CeremonyType) (*webauthn.SessionData, error) {
	challenge, err := s.challengeRepo.Consume(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChallengeInvalid
		}
		return nil, err
	}

	if challenge.Type != ceremonyType {
		return nil, models.ErrChallengeInvalid
	}
	if challenge.UserID == nil || *challenge.UserID != userID {
		return nil, models.ErrChallengeInvalid
	}
	if challenge.IsExpired() {
		return nil, models.ErrChallengeInvalid
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.SessionData, &session); err != nil {
		s.logger.Error("failed to decode ceremony session",
			slog.String("challenge_id", challengeID),
			slog.Any("error", err))
		return nil, models.ErrChallengeInvalid
	}

	return &session, nil
}

// RegistrationOptions carries the creation options plus the challenge
// handle the client must echo back when finishing.
type RegistrationOptions struct {
	Options     *protocol.CredentialCreation
	ChallengeID string
}

// BeginRegistration starts a passkey registration ceremony for an
// authenticated user. Existing credentials are excluded so an
// authenticator cannot be registered twice.
func (s *PasskeyService) BeginRegistration(ctx context.Context, userID string) (*RegistrationOptions, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	waUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, len(waUser.creds))
	for i, cred := range waUser.creds {
		exclusions[i] = cred.Descriptor()
	}

	options, session, err := s.webAuthn.BeginRegistration(waUser, webauthn.WithExclusions(exclusions))
	if err != nil {
		s.logger.Error("failed to begin passkey registration", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	challengeID, err := s.storeChallenge(ctx, userID, models.CeremonyRegistration, session)
	if err != nil {
		return nil, err
	}

	return &RegistrationOptions{Options: options, ChallengeID: challengeID}, nil
}

// FinishRegistration verifies the authenticator's attestation response
// and stores the new credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, userID, challengeID, name, ipAddress string, response io.Reader) (*models.PasskeyCredential, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := s.consumeChallenge(ctx, challengeID, userID, models.CeremonyRegistration)
	if err != nil {
		return nil, err
	}

	waUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	parsedResponse, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, models.ErrBadRequest
	}

	credential, err := s.webAuthn.CreateCredential(waUser, *session, parsedResponse)
	if err != nil {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "passkey_registration",
			UserID:        userID,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "attestation_verification_failed",
		})
		return nil, models.ErrChallengeInvalid
	}

	transports := make([]string, len(credential.Transport))
	for i, t := range credential.Transport {
		transports[i] = string(t)
	}

	stored, err := s.passkeyRepo.Create(ctx, &models.PasskeyCredential{
		UserID:          userID,
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		AAGUID:          credential.Authenticator.AAGUID,
		SignCount:       credential.Authenticator.SignCount,
		Transports:      transports,
		BackupEligible:  credential.Flags.BackupEligible,
		BackupState:     credential.Flags.BackupState,
		Name:            name,
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogCredentialAction("passkey_registered", userID, ipAddress, map[string]string{
		"passkey_id":   stored.ID,
		"passkey_name": stored.Name,
	})

	return stored, nil
}

// AssertionOptions carries the request options plus the challenge
// handle for finishing authentication.
type AssertionOptions struct {
	Options     *protocol.CredentialAssertion
	ChallengeID string
}

// BeginLogin starts a passkey authentication ceremony for the account
// behind an email. Returns ErrNoPasskeys when the account has none, so
// the caller can fall back to another factor.
func (s *PasskeyService) BeginLogin(ctx context.Context, email string) (*AssertionOptions, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	waUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(waUser.creds) == 0 {
		return nil, models.ErrNoPasskeys
	}

	options, session, err := s.webAuthn.BeginLogin(waUser)
	if err != nil {
		s.logger.Error("failed to begin passkey login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	challengeID, err := s.storeChallenge(ctx, user.ID, models.CeremonyAuthentication, session)
	if err != nil {
		return nil, err
	}

	return &AssertionOptions{Options: options, ChallengeID: challengeID}, nil
}

// FinishLogin verifies an assertion response. The email must resolve to
// the same account the ceremony was begun for; a challenge issued to
// one account can never authenticate another.
func (s *PasskeyService) FinishLogin(ctx context.Context, email, challengeID string, response io.Reader) (*models.UserCredential, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChallengeInvalid
		}
		return nil, err
	}

	session, err := s.consumeChallenge(ctx, challengeID, user.ID, models.CeremonyAuthentication)
	if err != nil {
		return nil, err
	}

	waUser, err := s.loadWebAuthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, models.ErrBadRequest
	}

	credential, err := s.webAuthn.ValidateLogin(waUser, *session, parsedResponse)
	if err != nil {
		return nil, models.ErrChallengeInvalid
	}

	// The credential row can vanish between begin and finish if the
	// user deletes the passkey mid-ceremony.
	stored, err := s.passkeyRepo.GetByCredentialID(ctx, credential.ID)
	if err != nil {
		s.logger.Error("passkey missing after successful assertion",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrChallengeInvalid
	}

	if credential.Authenticator.CloneWarning {
		s.logger.Warn("passkey sign count regression, possible cloned authenticator",
			slog.String("user_id", user.ID),
			slog.String("passkey_id", stored.ID),
			slog.String("passkey_name", stored.Name))
	}

	if err := s.passkeyRepo.UpdateSignCount(ctx, credential.ID, credential.Authenticator.SignCount); err != nil {
		s.logger.Error("failed to update passkey sign count",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	return user, nil
}

// ListPasskeys returns a user's registered passkeys.
func (s *PasskeyService) ListPasskeys(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	return s.passkeyRepo.GetByUserID(ctx, userID)
}

// RenamePasskey updates the display name of one of the user's passkeys.
func (s *PasskeyService) RenamePasskey(ctx context.Context, userID, passkeyID, name string) error {
	return s.passkeyRepo.Rename(ctx, passkeyID, userID, name)
}

// DeletePasskey removes one of the user's passkeys.
func (s *PasskeyService) DeletePasskey(ctx context.Context, userID, passkeyID, ipAddress string) error {
	if err := s.passkeyRepo.Delete(ctx, passkeyID, userID); err != nil {
		return err
	}

	s.audit.LogCredentialAction("passkey_removed", userID, ipAddress, map[string]string{
		"passkey_id": passkeyID,
	})
	return nil
}

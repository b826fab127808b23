package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/models"
	pkgauth "github.com/openhearth/casekeeper/pkg/auth"
	"github.com/openhearth/casekeeper/pkg/logger"
)

// Login result statuses.
const (
	LoginStatusOK          = "ok"
	LoginStatusMFARequired = "mfa_required"
)

// LoginResult is the outcome of a login step. When Status is
// mfa_required only MFAToken and MFAMethods are set; the session
// tokens appear after the second factor completes.
type LoginResult struct {
	Status       string
	AccessToken  string
	RefreshToken string
	MFAToken     string
	MFAMethods   []string
	User         *models.UserCredential
}

// LoginService orchestrates the login flow: lockout check, password
// verification, second-factor branching, and token issuance. A success
// is only recorded once every required factor has passed.
type LoginService struct {
	userRepo UserRepository
	lockout  *LockoutService
	totp     *TOTPService
	passkeys *PasskeyService
	tm       *auth.TokenManager
	timing   *auth.TimingDelay
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewLoginService creates a new LoginService
func NewLoginService(
	userRepo UserRepository,
	lockout *LockoutService,
	totp *TOTPService,
	passkeys *PasskeyService,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		userRepo: userRepo,
		lockout:  lockout,
		totp:     totp,
		passkeys: passkeys,
		tm:       tm,
		timing:   timing,
		audit:    audit,
		logger:   logger,
	}
}

// Login verifies the password factor. Unknown accounts and wrong
// passwords both fail with ErrInvalidCredentials after an equalized
// delay, so the two cases are indistinguishable to a caller.
func (s *LoginService) Login(ctx context.Context, email, password, ipAddress string) (*LoginResult, error) {
	start := time.Now()

	if err := s.requireUnlocked(ctx, email, ipAddress, "login"); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.failPassword(ctx, email, nil, ipAddress, start, "unknown_account")
		}
		return nil, err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.failPassword(ctx, email, &user.ID, ipAddress, start, "invalid_password")
	}

	methods := s.mfaMethods(ctx, user)
	if len(methods) > 0 {
		mfaToken, err := s.tm.IssueMFAPending(user, methods[0])
		if err != nil {
			s.logger.Error("failed to issue MFA pending token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		// No attempt row yet: the login is neither a success nor a
		// failure until the second factor resolves.
		return &LoginResult{
			Status:     LoginStatusMFARequired,
			MFAToken:   mfaToken,
			MFAMethods: methods,
			User:       user,
		}, nil
	}

	return s.finalize(ctx, user, ipAddress, "password")
}

// requireUnlocked gates an attempt on the lockout state for an
// identifier. The gate applies to every factor, not just the password:
// second-factor attempts count toward the threshold, so they are also
// rejected once it is reached.
func (s *LoginService) requireUnlocked(ctx context.Context, email, ipAddress, eventType string) error {
	locked, _, err := s.lockout.CheckLockout(ctx, email)
	if err != nil {
		return err
	}
	if locked {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     eventType,
			Email:         email,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "account_locked",
		})
		return models.ErrAccountLocked
	}
	return nil
}

func (s *LoginService) failPassword(ctx context.Context, email string, userID *string, ipAddress string, start time.Time, reason string) error {
	if err := s.lockout.RecordAttempt(ctx, email, userID, ipAddress, false); err != nil {
		s.logger.Error("failed to record failed login", slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		Email:         email,
		IPAddress:     ipAddress,
		Success:       false,
		FailureReason: reason,
	})

	s.timing.WaitFrom(start, false)
	return models.ErrInvalidCredentials
}

// mfaMethods returns the second factors available to a user, preferred
// method first.
func (s *LoginService) mfaMethods(ctx context.Context, user *models.UserCredential) []string {
	var methods []string

	creds, err := s.passkeys.ListPasskeys(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to list passkeys", slog.Any("error", err))
	} else if len(creds) > 0 {
		methods = append(methods, models.MFAMethodPasskey)
	}

	if user.TOTPEnabled {
		methods = append(methods, models.MFAMethodTOTP)
	}

	return methods
}

// VerifyTOTP completes a login whose password factor already passed.
// A wrong code counts toward the account lockout.
func (s *LoginService) VerifyTOTP(ctx context.Context, mfaToken, code, ipAddress string) (*LoginResult, error) {
	claims, err := s.tm.ValidateMFAPending(mfaToken)
	if err != nil {
		return nil, err
	}

	if err := s.requireUnlocked(ctx, claims.Email, ipAddress, "mfa_verify"); err != nil {
		return nil, err
	}

	if err := s.totp.Verify(ctx, claims.UserID, code); err != nil {
		if errors.Is(err, models.ErrInvalidMFACode) {
			return nil, s.failSecondFactor(ctx, claims.Email, &claims.UserID, ipAddress, "invalid_totp_code")
		}
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	return s.finalize(ctx, user, ipAddress, "password+totp")
}

// BeginPasskeyMFA starts a passkey ceremony as the second factor.
func (s *LoginService) BeginPasskeyMFA(ctx context.Context, mfaToken string) (*AssertionOptions, error) {
	claims, err := s.tm.ValidateMFAPending(mfaToken)
	if err != nil {
		return nil, err
	}

	if err := s.requireUnlocked(ctx, claims.Email, "", "mfa_verify"); err != nil {
		return nil, err
	}

	return s.passkeys.BeginLogin(ctx, claims.Email)
}

// FinishPasskeyMFA completes a login with a passkey assertion as the
// second factor.
func (s *LoginService) FinishPasskeyMFA(ctx context.Context, mfaToken, challengeID, ipAddress string, response io.Reader) (*LoginResult, error) {
	claims, err := s.tm.ValidateMFAPending(mfaToken)
	if err != nil {
		return nil, err
	}

	if err := s.requireUnlocked(ctx, claims.Email, ipAddress, "mfa_verify"); err != nil {
		return nil, err
	}

	user, err := s.passkeys.FinishLogin(ctx, claims.Email, challengeID, response)
	if err != nil {
		if errors.Is(err, models.ErrChallengeInvalid) {
			return nil, s.failSecondFactor(ctx, claims.Email, &claims.UserID, ipAddress, "passkey_verification_failed")
		}
		return nil, err
	}

	return s.finalize(ctx, user, ipAddress, "password+passkey")
}

func (s *LoginService) failSecondFactor(ctx context.Context, email string, userID *string, ipAddress, reason string) error {
	if err := s.lockout.RecordAttempt(ctx, email, userID, ipAddress, false); err != nil {
		s.logger.Error("failed to record failed login", slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "mfa_verify",
		Email:         email,
		IPAddress:     ipAddress,
		Success:       false,
		FailureReason: reason,
	})

	s.timing.Wait(false)
	return models.ErrInvalidMFACode
}

// BeginPasskeyLogin starts a standalone passkey login, where the
// passkey serves as the sole factor. Lockout applies here too.
func (s *LoginService) BeginPasskeyLogin(ctx context.Context, email string) (*AssertionOptions, error) {
	if err := s.requireUnlocked(ctx, email, "", "passkey_login"); err != nil {
		return nil, err
	}

	return s.passkeys.BeginLogin(ctx, email)
}

// FinishPasskeyLogin completes a standalone passkey login.
func (s *LoginService) FinishPasskeyLogin(ctx context.Context, email, challengeID, ipAddress string, response io.Reader) (*LoginResult, error) {
	if err := s.requireUnlocked(ctx, email, ipAddress, "passkey_login"); err != nil {
		return nil, err
	}

	user, err := s.passkeys.FinishLogin(ctx, email, challengeID, response)
	if err != nil {
		if errors.Is(err, models.ErrChallengeInvalid) {
			if recordErr := s.lockout.RecordAttempt(ctx, email, nil, ipAddress, false); recordErr != nil {
				s.logger.Error("failed to record failed login", slog.Any("error", recordErr))
			}
			s.audit.LogAuthAttempt(logger.AuditEvent{
				EventType:     "passkey_login",
				Email:         email,
				IPAddress:     ipAddress,
				Success:       false,
				FailureReason: "passkey_verification_failed",
			})
		}
		return nil, err
	}

	return s.finalize(ctx, user, ipAddress, "passkey")
}

// Refresh exchanges a refresh token for a fresh access/refresh pair.
// Claims are rebuilt from the stored account, so role changes take
// effect on rotation.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tm.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, err
	}

	access, refresh, err := s.tm.IssueSession(user)
	if err != nil {
		s.logger.Error("failed to issue session tokens", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		Status:       LoginStatusOK,
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// finalize records the success and issues tokens. Portal accounts get a
// contact-scoped portal token instead of a staff session pair.
func (s *LoginService) finalize(ctx context.Context, user *models.UserCredential, ipAddress, method string) (*LoginResult, error) {
	if err := s.lockout.RecordAttempt(ctx, user.Email, &user.ID, ipAddress, true); err != nil {
		s.logger.Error("failed to record successful login", slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]string{"method": method},
	})

	if user.Role == models.RolePortal {
		portalToken, err := s.tm.IssuePortal(user)
		if err != nil {
			s.logger.Error("failed to issue portal token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return &LoginResult{
			Status:      LoginStatusOK,
			AccessToken: portalToken,
			User:        user,
		}, nil
	}

	access, refresh, err := s.tm.IssueSession(user)
	if err != nil {
		s.logger.Error("failed to issue session tokens", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		Status:       LoginStatusOK,
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication-path errors. Handlers map all of these to a generic
	// rejection; the distinction exists for logging and audit only.
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrInvalidMFACode      = errors.New("invalid authentication code")
	ErrNoPendingEnrollment = errors.New("no pending enrollment")
	ErrMFANotEnabled       = errors.New("mfa is not enabled")
	ErrChallengeInvalid    = errors.New("challenge expired or invalid")
	ErrNoPasskeys          = errors.New("no passkeys registered")
	ErrTokenInvalid        = errors.New("token invalid or expired")
)

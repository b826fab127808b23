package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpSecretSize = 32
)

// TOTPManager generates and validates time-based one-time codes.
// Encryption of secrets at rest is handled separately by the secret
// cipher; this type only ever sees plaintext base32 secrets.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// EnrollmentKey is the material handed to a user during TOTP setup.
type EnrollmentKey struct {
	Secret    string // base32, plaintext; encrypt before storing
	URL       string // otpauth:// provisioning URI
	QRDataURL string // PNG data URL for inline display
}

// GenerateKey creates a fresh TOTP secret for an account along with its
// provisioning URI and QR code.
func (tm *TOTPManager) GenerateKey(accountEmail string) (*EnrollmentKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &EnrollmentKey{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
	}, nil
}

// Validate checks a six-digit code against a plaintext base32 secret.
// Allows ±1 time step for clock drift.
func (tm *TOTPManager) Validate(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

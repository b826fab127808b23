package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openhearth/casekeeper/internal/config"
	"github.com/openhearth/casekeeper/internal/database"
	"github.com/openhearth/casekeeper/internal/repositories"
	"github.com/openhearth/casekeeper/pkg/crypto"
)

// Re-encrypts every stored TOTP secret under a new cipher key.
// Reads the current key from TOTP_CIPHER_KEY and the replacement from
// TOTP_CIPHER_KEY_NEW. After a successful run, deploy the API with the
// new key as TOTP_CIPHER_KEY.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	newKey, err := loadNewKey()
	if err != nil {
		logger.Error("failed to load new cipher key", slog.Any("error", err))
		os.Exit(1)
	}

	oldCipher, err := crypto.NewSecretCipher(cfg.Auth.CipherKey)
	if err != nil {
		logger.Error("failed to initialize current cipher", slog.Any("error", err))
		os.Exit(1)
	}
	newCipher, err := crypto.NewSecretCipher(newKey)
	if err != nil {
		logger.Error("failed to initialize new cipher", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	err = userRepo.RotateTOTPSecrets(ctx, func(envelope string) (string, error) {
		return oldCipher.Rotate(envelope, newCipher)
	})
	if err != nil {
		logger.Error("rotation failed, no secrets were changed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("cipher rotation completed", slog.Duration("elapsed", time.Since(start)))
}

func loadNewKey() ([]byte, error) {
	raw := os.Getenv("TOTP_CIPHER_KEY_NEW")
	if raw == "" {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY_NEW is required")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY_NEW must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY_NEW must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

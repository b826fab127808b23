package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Passkey  PasskeyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type AuthConfig struct {
	JWTSecret          string
	CipherKey          []byte // 32 bytes, decoded from TOTP_CIPHER_KEY
	TOTPIssuer         string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MFATokenExpiry     time.Duration
	PortalTokenExpiry  time.Duration
	LockoutThreshold   int
	LockoutWindow      time.Duration
	CleanupInterval    time.Duration
}

type PasskeyConfig struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
	ChallengeTTL  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	// Signing and cipher keys are required with no implicit default.
	// Missing keys abort startup rather than degrade.
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cipherKeyHex := getEnv("TOTP_CIPHER_KEY", "")
	if cipherKeyHex == "" {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY is required")
	}
	cipherKey, err := hex.DecodeString(cipherKeyHex)
	if err != nil {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY must be hex-encoded: %w", err)
	}
	if len(cipherKey) != 32 {
		return nil, fmt.Errorf("TOTP_CIPHER_KEY must decode to 32 bytes, got %d", len(cipherKey))
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "casekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			CipherKey:          cipherKey,
			TOTPIssuer:         getEnv("TOTP_ISSUER", "CaseKeeper"),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			MFATokenExpiry:     getEnvAsDuration("MFA_TOKEN_EXPIRY", 5*time.Minute),
			PortalTokenExpiry:  getEnvAsDuration("PORTAL_TOKEN_EXPIRY", 24*time.Hour),
			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutWindow:      getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Passkey: PasskeyConfig{
			RPDisplayName: getEnv("PASSKEY_RP_DISPLAY_NAME", "CaseKeeper"),
			RPID:          getEnv("PASSKEY_RP_ID", "localhost"),
			RPOrigins:     parseOrigins(getEnv("PASSKEY_RP_ORIGINS", "http://localhost:8080")),
			ChallengeTTL:  getEnvAsDuration("PASSKEY_CHALLENGE_TTL", 5*time.Minute),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the signing key
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

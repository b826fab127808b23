package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/background"
	"github.com/openhearth/casekeeper/internal/config"
	"github.com/openhearth/casekeeper/internal/database"
	"github.com/openhearth/casekeeper/internal/handlers"
	middlewareCustom "github.com/openhearth/casekeeper/internal/middleware"
	"github.com/openhearth/casekeeper/internal/models"
	"github.com/openhearth/casekeeper/internal/repositories"
	"github.com/openhearth/casekeeper/internal/routes"
	"github.com/openhearth/casekeeper/internal/services"
	pkgauth "github.com/openhearth/casekeeper/pkg/auth"
	"github.com/openhearth/casekeeper/pkg/crypto"
	pkghttp "github.com/openhearth/casekeeper/pkg/http"
	pkglogger "github.com/openhearth/casekeeper/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration. Missing signing or cipher keys abort here.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	passkeyRepo := repositories.NewPasskeyRepository(db)
	challengeRepo := repositories.NewChallengeRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(challengeRepo, loginAttemptRepo, logger, cfg.Auth.CleanupInterval)

	// Secret cipher for TOTP secrets at rest
	secretCipher, err := crypto.NewSecretCipher(cfg.Auth.CipherKey)
	if err != nil {
		logger.Error("failed to initialize secret cipher", slog.Any("error", err))
		os.Exit(1)
	}

	// Token manager
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, auth.TokenExpiries{
		Access:  cfg.Auth.AccessTokenExpiry,
		Refresh: cfg.Auth.RefreshTokenExpiry,
		MFA:     cfg.Auth.MFATokenExpiry,
		Portal:  cfg.Auth.PortalTokenExpiry,
	})

	// WebAuthn relying party
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.Passkey.RPDisplayName,
		RPID:          cfg.Passkey.RPID,
		RPOrigins:     cfg.Passkey.RPOrigins,
	})
	if err != nil {
		logger.Error("failed to initialize webauthn", slog.Any("error", err))
		os.Exit(1)
	}

	// Timing delay for auth failures
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 50,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	lockoutService := services.NewLockoutService(loginAttemptRepo, services.LockoutConfig{
		Threshold: cfg.Auth.LockoutThreshold,
		Window:    cfg.Auth.LockoutWindow,
	}, logger)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	totpService := services.NewTOTPService(userRepo, totpManager, secretCipher, auditLogger, logger)
	passkeyService := services.NewPasskeyService(userRepo, passkeyRepo, challengeRepo, webAuthn, cfg.Passkey.ChallengeTTL, auditLogger, logger)
	loginService := services.NewLoginService(userRepo, lockoutService, totpService, passkeyService, tokenManager, timingDelay, auditLogger, logger)
	accountService := services.NewAccountService(userRepo, auditLogger, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(loginService, ipConfig)
	mfaHandler := handlers.NewMFAHandler(totpService, ipConfig)
	passkeyHandler := handlers.NewPasskeyHandler(passkeyService, ipConfig)
	accountHandler := handlers.NewAccountHandler(accountService, ipConfig)
	portalHandler := handlers.NewPortalHandler()

	// Bootstrap first admin user if configured
	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, mfaHandler, passkeyHandler, accountHandler, portalHandler, tokenManager)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return err
	}

	_, err = userRepo.Create(ctx, &models.UserCredential{
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return err
	}

	logger.Info("admin user created", slog.String("email", adminEmail))
	return nil
}

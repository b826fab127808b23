package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/openhearth/casekeeper/internal/auth"
	"github.com/openhearth/casekeeper/internal/handlers"
	"github.com/openhearth/casekeeper/internal/middleware"
	"github.com/openhearth/casekeeper/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	passkeyHandler *handlers.PasskeyHandler,
	accountHandler *handlers.AccountHandler,
	portalHandler *handlers.PortalHandler,
	tokenManager *auth.TokenManager,
) {
	// Rate limiting config for auth endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - credential presentation, rate limited by IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/totp", authHandler.VerifyTOTP)
		r.Post("/auth/login/passkey/begin", authHandler.BeginPasskeyMFA)
		r.Post("/auth/login/passkey/finish", authHandler.FinishPasskeyMFA)
		r.Post("/auth/passkey/begin", authHandler.BeginPasskeyLogin)
		r.Post("/auth/passkey/finish", authHandler.FinishPasskeyLogin)
		r.Post("/auth/refresh", authHandler.RefreshToken)
	})

	// Protected routes - staff session required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager))

		// Self-service credential management
		r.Post("/auth/password", accountHandler.ChangePassword)

		// TOTP enrollment lifecycle
		r.Post("/mfa/totp/enroll", mfaHandler.BeginEnrollment)
		r.Post("/mfa/totp/confirm", mfaHandler.ConfirmEnrollment)
		r.Post("/mfa/totp/disable", mfaHandler.DisableTOTP)

		// Passkey management
		r.Post("/mfa/passkeys/register/begin", passkeyHandler.BeginRegistration)
		r.Post("/mfa/passkeys/register/finish", passkeyHandler.FinishRegistration)
		r.Get("/mfa/passkeys", passkeyHandler.ListPasskeys)
		r.Put("/mfa/passkeys/{id}", passkeyHandler.RenamePasskey)
		r.Delete("/mfa/passkeys/{id}", passkeyHandler.DeletePasskey)
	})

	// Admin routes - staff session with the admin role
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager))
		r.Use(auth.RequireRole(models.RoleAdmin))

		r.Post("/admin/users", accountHandler.CreateUser)
	})

	// Portal routes - contact-scoped portal tokens only
	router.Group(func(r chi.Router) {
		r.Use(auth.PortalMiddleware(tokenManager))

		r.Get("/portal/session", portalHandler.Session)
	})
}

package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartcore/vaultgate/internal/auth"
	"github.com/smartcore/vaultgate/internal/handlers"
	"github.com/smartcore/vaultgate/internal/middleware"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Vault          *handlers.VaultHandler
	Health         *handlers.HealthHandler
	Metrics        http.Handler
	Identities     auth.IdentityResolver
	Roles          auth.RoleResolver
	Grants         *auth.GrantIssuer
	PrivilegedRole string
	VerifyLimit    middleware.RateLimitConfig
	Logger         *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// The gate resolves identity and role itself so that its failure order is preserved
	verifyLimit := middleware.RateLimitByIP(deps.VerifyLimit)
	router.With(verifyLimit).Post("/verify-vault-pin", deps.Vault.VerifyPin)
	router.With(verifyLimit).Post("/vault-verify", deps.Vault.VerifyPin)

	// Privileged routes - identity and directory role required
	router.Group(func(r chi.Router) {
		r.Use(auth.IdentityMiddleware(deps.Identities, deps.Logger))
		r.Use(auth.RequireRole(deps.Roles, deps.PrivilegedRole, deps.Logger))

		r.Get("/vault/status", deps.Vault.Status)

		// Vault contents - an unexpired unlock grant is also required
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireVaultGrant(deps.Grants, time.Now))
			r.Get("/vault/items", deps.Vault.ListItems)
			r.Post("/vault/items", deps.Vault.CreateItem)
		})
	})
}

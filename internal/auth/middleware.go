package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/smartcore/vaultgate/internal/models"
	pkghttp "github.com/smartcore/vaultgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the resolved identity in context
	IdentityContextKey contextKey = "identity"
	// GrantContextKey is the key for storing a verified unlock grant in context
	GrantContextKey contextKey = "vault_grant"
)

// GrantHeader carries the unlock grant on vault item requests
const GrantHeader = "X-Vault-Grant"

// RoleResolver maps an identity onto its directory role.
// Implementations return models.ErrNotFound when the identity has no directory row.
type RoleResolver interface {
	RoleOf(ctx context.Context, identity *models.Identity) (string, error)
}

// IdentityMiddleware resolves the bearer credential and injects the identity into context
func IdentityMiddleware(resolver IdentityResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := pkghttp.BearerToken(r)
			if credential == "" {
				pkghttp.WriteUnauthorized(w, "Not authenticated")
				return
			}

			identity, err := resolver.Resolve(r.Context(), credential)
			if err != nil {
				if isUnavailable(err) {
					logger.Error("identity resolver unavailable", slog.Any("error", err))
					pkghttp.WriteServiceUnavailable(w, "Identity service unavailable, try again")
					return
				}
				pkghttp.WriteUnauthorized(w, "Invalid session")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole re-resolves the caller's role on every request and enforces it
func RequireRole(roles RoleResolver, role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentityFromContext(r)
			if identity == nil {
				pkghttp.WriteUnauthorized(w, "Not authenticated")
				return
			}

			if role == "" {
				logger.Error("privileged role not configured")
				pkghttp.WriteInternalError(w, "Server misconfigured")
				return
			}

			actual, err := roles.RoleOf(r.Context(), identity)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrNotFound):
					pkghttp.WriteForbidden(w, "Access denied")
				case isUnavailable(err):
					pkghttp.WriteServiceUnavailable(w, "Service unavailable, try again")
				default:
					logger.Error("role lookup failed", slog.String("user_id", identity.UserID), slog.Any("error", err))
					pkghttp.WriteInternalError(w, "Server misconfigured")
				}
				return
			}

			if !strings.EqualFold(actual, role) {
				pkghttp.WriteForbidden(w, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireVaultGrant verifies the X-Vault-Grant header against the caller's identity.
// now is injectable for tests; nil uses time.Now.
func RequireVaultGrant(issuer *GrantIssuer, now func() time.Time) func(next http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentityFromContext(r)
			if identity == nil {
				pkghttp.WriteUnauthorized(w, "Not authenticated")
				return
			}

			token := strings.TrimSpace(r.Header.Get(GrantHeader))
			if token == "" {
				pkghttp.WriteError(w, http.StatusForbidden, "vault_locked", "Vault is locked")
				return
			}

			grant, err := issuer.Verify(token, identity.UserID, now())
			if err != nil {
				pkghttp.WriteError(w, http.StatusForbidden, "vault_locked", "Vault unlock has expired or is invalid")
				return
			}

			ctx := context.WithValue(r.Context(), GrantContextKey, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext extracts the resolved identity from request context
func GetIdentityFromContext(r *http.Request) *models.Identity {
	identity, ok := r.Context().Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetGrantFromContext extracts a verified unlock grant from request context
func GetGrantFromContext(r *http.Request) *models.UnlockGrant {
	grant, ok := r.Context().Value(GrantContextKey).(*models.UnlockGrant)
	if !ok {
		return nil
	}
	return grant
}

func isUnavailable(err error) bool {
	return errors.Is(err, models.ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

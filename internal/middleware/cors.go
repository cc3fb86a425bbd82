package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/smartcore/vaultgate/internal/auth"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// DefaultCORSConfig returns the CORS configuration for the vault UI origins
func DefaultCORSConfig(allowedOrigins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		MaxAge:         3600,
	}
}

// CORS returns a CORS middleware. Only explicitly configured origins are allowed;
// an empty list rejects every cross-origin request.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.GrantHeader},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           config.MaxAge,
	})
}

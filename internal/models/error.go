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

	// Vault errors
	ErrVaultLocked         = errors.New("vault unlock is temporarily locked")
	ErrGrantInvalid        = errors.New("vault unlock grant is invalid or expired")
	ErrSecretNotConfigured = errors.New("vault reference secret is not configured")
	ErrUpstreamUnavailable = errors.New("upstream dependency unavailable")
)

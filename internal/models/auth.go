package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller as established by the identity provider for one request.
type Identity struct {
	UserID string
	Email  string
}

// AccessTokenClaims are the claims carried by the identity platform's access tokens
type AccessTokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // platform role ("authenticated"), not the directory role
	jwt.RegisteredClaims
}

// GrantClaims are the claims of a signed vault unlock grant
type GrantClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

const GrantTokenType = "vault_unlock"

// DirectoryEntry is a row of the login directory mapping an identity to a role
type DirectoryEntry struct {
	ID    string
	Email string
	Role  string
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartcore/vaultgate/internal/models"
)

// IdentityResolver turns a bearer credential into the caller's identity.
// Invalid or expired credentials yield models.ErrUnauthorized.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*models.Identity, error)
}

// TokenManager validates access tokens issued by the identity platform (HS256)
type TokenManager struct {
	secret   []byte
	audience string
	issuer   string
}

// NewTokenManager creates a new TokenManager. Empty audience or issuer disables that check.
func NewTokenManager(secret, audience, issuer string) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		audience: audience,
		issuer:   issuer,
	}
}

// ValidateToken verifies a platform access token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.AccessTokenClaims, error) {
	claims := &models.AccessTokenClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if tm.audience != "" {
		opts = append(opts, jwt.WithAudience(tm.audience))
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}

// Resolve implements IdentityResolver for locally verifiable platform tokens
func (tm *TokenManager) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := tm.ValidateToken(credential)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	return &models.Identity{
		UserID: claims.Subject,
		Email:  strings.ToLower(claims.Email),
	}, nil
}

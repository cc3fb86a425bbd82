package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smartcore/vaultgate/internal/models"
)

// GrantIssuer signs and verifies vault unlock grants
type GrantIssuer struct {
	key []byte
	ttl time.Duration
}

// NewGrantIssuer creates a new GrantIssuer. The key must differ from any identity secret.
func NewGrantIssuer(signingKey string, ttl time.Duration) *GrantIssuer {
	return &GrantIssuer{key: []byte(signingKey), ttl: ttl}
}

// TTL returns the lifetime of issued grants
func (gi *GrantIssuer) TTL() time.Duration {
	return gi.ttl
}

// Issue signs a grant for userID valid from now until now+TTL
func (gi *GrantIssuer) Issue(userID string, now time.Time) (*models.UnlockGrant, error) {
	now = now.UTC().Truncate(time.Second)
	expiresAt := now.Add(gi.ttl)

	claims := &models.GrantClaims{
		Type: models.GrantTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(gi.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign unlock grant: %w", err)
	}

	return &models.UnlockGrant{
		Subject:   userID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Token:     signed,
	}, nil
}

// Verify checks signature, type, subject and expiry of a grant token at now
func (gi *GrantIssuer) Verify(tokenString, userID string, now time.Time) (*models.UnlockGrant, error) {
	claims := &models.GrantClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return gi.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: grant expired", models.ErrGrantInvalid)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrGrantInvalid, err)
	}

	if claims.Type != models.GrantTokenType {
		return nil, fmt.Errorf("%w: wrong token type", models.ErrGrantInvalid)
	}
	if claims.Subject == "" || claims.Subject != userID {
		return nil, fmt.Errorf("%w: grant belongs to another user", models.ErrGrantInvalid)
	}

	grant := &models.UnlockGrant{
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     tokenString,
	}
	if !grant.ValidAt(now) {
		return nil, fmt.Errorf("%w: grant expired", models.ErrGrantInvalid)
	}

	return grant, nil
}

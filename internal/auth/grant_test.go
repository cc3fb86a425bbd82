package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smartcore/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGrantKey = "grant-signing-key-32-characters!"

var grantEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGrantIssuer_IssueAndVerify(t *testing.T) {
	gi := NewGrantIssuer(testGrantKey, 20*time.Minute)
	assert.Equal(t, 20*time.Minute, gi.TTL())

	grant, err := gi.Issue("user-1", grantEpoch)
	require.NoError(t, err)
	assert.Equal(t, "user-1", grant.Subject)
	assert.Equal(t, grantEpoch.Add(20*time.Minute), grant.ExpiresAt)

	verified, err := gi.Verify(grant.Token, "user-1", grantEpoch.Add(19*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, grant.ExpiresAt, verified.ExpiresAt.UTC())
}

func TestGrantIssuer_Verify_Expiry(t *testing.T) {
	gi := NewGrantIssuer(testGrantKey, 20*time.Minute)
	grant, err := gi.Issue("user-1", grantEpoch)
	require.NoError(t, err)

	_, err = gi.Verify(grant.Token, "user-1", grantEpoch.Add(20*time.Minute))
	assert.True(t, errors.Is(err, models.ErrGrantInvalid), "grant must be invalid at exactly ExpiresAt")

	_, err = gi.Verify(grant.Token, "user-1", grantEpoch.Add(21*time.Minute))
	assert.True(t, errors.Is(err, models.ErrGrantInvalid))
}

func TestGrantIssuer_Verify_ForeignSubject(t *testing.T) {
	gi := NewGrantIssuer(testGrantKey, 20*time.Minute)
	grant, err := gi.Issue("user-1", grantEpoch)
	require.NoError(t, err)

	_, err = gi.Verify(grant.Token, "user-2", grantEpoch.Add(time.Minute))
	assert.True(t, errors.Is(err, models.ErrGrantInvalid))
}

func TestGrantIssuer_Verify_WrongKey(t *testing.T) {
	grant, err := NewGrantIssuer(testGrantKey, 20*time.Minute).Issue("user-1", grantEpoch)
	require.NoError(t, err)

	_, err = NewGrantIssuer("another-grant-key-32-characters", 20*time.Minute).
		Verify(grant.Token, "user-1", grantEpoch.Add(time.Minute))
	assert.True(t, errors.Is(err, models.ErrGrantInvalid))
}

func TestGrantIssuer_Verify_RejectsPlatformToken(t *testing.T) {
	// A token signed with the grant key but lacking the grant type must not unlock
	claims := platformClaims("user-1", "a@example.com", grantEpoch.Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testGrantKey))
	require.NoError(t, err)

	_, err = NewGrantIssuer(testGrantKey, 20*time.Minute).Verify(token, "user-1", grantEpoch.Add(time.Minute))
	assert.True(t, errors.Is(err, models.ErrGrantInvalid))
}

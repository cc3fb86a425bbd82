package integration

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/smartcore/vaultgate/internal/models"
)

const (
	testPlatformSecret = "integration-platform-jwt-secret"
	testAudience       = "authenticated"
	testGrantKey       = "integration-grant-signing-key-0123"
	testPin            = "482916"
	testThreshold      = 5
)

// TestLogin generates a unique identity id and email
func TestLogin(suffix string) (id, email string) {
	id = uuid.NewString()
	email = fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
	return
}

// PlatformToken signs an access token the way the identity platform does
func PlatformToken(userID, email string) (string, error) {
	now := time.Now()
	claims := models.AccessTokenClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testPlatformSecret))
}

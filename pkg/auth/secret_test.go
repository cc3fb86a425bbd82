package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret_VerifyRoundTrip(t *testing.T) {
	for _, algorithm := range []string{AlgorithmArgon2id, AlgorithmSHA256, AlgorithmBcrypt} {
		t.Run(algorithm, func(t *testing.T) {
			salt, hash, err := HashSecret(algorithm, "9656")
			require.NoError(t, err)

			ref, err := NewReferenceSecret(algorithm, salt, hash)
			require.NoError(t, err)
			assert.Equal(t, algorithm, ref.Algorithm())

			assert.True(t, ref.Verify("9656"))
			assert.False(t, ref.Verify("9657"))
			assert.False(t, ref.Verify(""))
			assert.False(t, ref.Verify("96560"))
		})
	}
}

func TestReferenceSecret_SHA256MatchesLegacyEncoding(t *testing.T) {
	// Legacy material: lowercase hex of sha256(salt + pin)
	sum := sha256.Sum256([]byte("pepper" + "2468"))
	hash := strings.ToUpper(hex.EncodeToString(sum[:]))

	ref, err := NewReferenceSecret(AlgorithmSHA256, "pepper", hash)
	require.NoError(t, err)

	assert.True(t, ref.Verify("2468"))
	assert.False(t, ref.Verify("2469"))
}

func TestNewReferenceSecret_RejectsBadMaterial(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		salt      string
		hash      string
	}{
		{"empty hash", AlgorithmArgon2id, "salt", ""},
		{"missing salt", AlgorithmSHA256, "", strings.Repeat("ab", 32)},
		{"not hex", AlgorithmSHA256, "salt", strings.Repeat("zz", 32)},
		{"short digest", AlgorithmArgon2id, "salt", "abcd"},
		{"bad bcrypt", AlgorithmBcrypt, "", "not-a-bcrypt-hash"},
		{"unknown algorithm", "md5", "salt", strings.Repeat("ab", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReferenceSecret(tt.algorithm, tt.salt, tt.hash)
			assert.True(t, errors.Is(err, ErrSecretMaterialInvalid), "got %v", err)
		})
	}
}

func TestReferenceSecret_NilNeverVerifies(t *testing.T) {
	var ref *ReferenceSecret
	assert.False(t, ref.Verify("anything"))
}

func TestGenerateSalt_Unique(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, a, SaltLength*2)
	assert.NotEqual(t, a, b)
}

func TestValidatePin(t *testing.T) {
	tests := []struct {
		name       string
		pin        string
		shouldFail bool
	}{
		{"valid", "9656", false},
		{"too short", "123", true},
		{"common", "1234", true},
		{"too long", strings.Repeat("7", MaxPinLen+1), true},
		{"long passphrase", "correct horse battery", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePin(tt.pin)
			if tt.shouldFail {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

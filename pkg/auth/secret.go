package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmSHA256   = "sha256"
	AlgorithmBcrypt   = "bcrypt"

	BcryptCost = 12
	SaltLength = 16 // bytes of randomness, hex encoded
	MinPinLen  = 4
	MaxPinLen  = 128

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

var ErrSecretMaterialInvalid = errors.New("reference secret material is invalid")

// ReferenceSecret is the provisioned salted hash a submitted secret is checked against.
// It never holds the plaintext.
type ReferenceSecret struct {
	algorithm string
	salt      []byte
	digest    []byte // decoded hash for argon2id/sha256
	encoded   []byte // full bcrypt hash
}

// NewReferenceSecret parses provisioned material. Hex hashes are case-insensitive.
func NewReferenceSecret(algorithm, salt, hash string) (*ReferenceSecret, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return nil, ErrSecretMaterialInvalid
	}

	switch algorithm {
	case AlgorithmBcrypt:
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretMaterialInvalid, err)
		}
		return &ReferenceSecret{algorithm: algorithm, encoded: []byte(hash)}, nil
	case AlgorithmArgon2id, AlgorithmSHA256:
		if salt == "" {
			return nil, ErrSecretMaterialInvalid
		}
		digest, err := hex.DecodeString(strings.ToLower(hash))
		if err != nil {
			return nil, fmt.Errorf("%w: hash is not hex", ErrSecretMaterialInvalid)
		}
		if len(digest) != 32 {
			return nil, fmt.Errorf("%w: expected 32-byte digest, got %d", ErrSecretMaterialInvalid, len(digest))
		}
		return &ReferenceSecret{algorithm: algorithm, salt: []byte(salt), digest: digest}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrSecretMaterialInvalid, algorithm)
	}
}

// Algorithm returns the hashing scheme of the material
func (r *ReferenceSecret) Algorithm() string {
	return r.algorithm
}

// Verify reports whether submitted matches the reference. The comparison is
// constant time with respect to the digest contents.
func (r *ReferenceSecret) Verify(submitted string) bool {
	if r == nil {
		return false
	}

	switch r.algorithm {
	case AlgorithmBcrypt:
		return bcrypt.CompareHashAndPassword(r.encoded, []byte(submitted)) == nil
	case AlgorithmArgon2id, AlgorithmSHA256:
		got := digestSecret(r.algorithm, r.salt, submitted)
		return subtle.ConstantTimeCompare(got, r.digest) == 1
	default:
		return false
	}
}

func digestSecret(algorithm string, salt []byte, secret string) []byte {
	if algorithm == AlgorithmSHA256 {
		sum := sha256.Sum256(append(append([]byte{}, salt...), secret...))
		return sum[:]
	}
	return argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// HashSecret produces (salt, hash) material for provisioning. bcrypt returns an empty salt.
func HashSecret(algorithm, secret string) (string, string, error) {
	if secret == "" {
		return "", "", fmt.Errorf("secret cannot be empty")
	}

	if algorithm == AlgorithmBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
		if err != nil {
			return "", "", fmt.Errorf("failed to hash secret: %w", err)
		}
		return "", string(hashed), nil
	}

	if algorithm != AlgorithmArgon2id && algorithm != AlgorithmSHA256 {
		return "", "", fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return "", "", err
	}
	return salt, hex.EncodeToString(digestSecret(algorithm, []byte(salt), secret)), nil
}

func GenerateSalt() (string, error) {
	bytes := make([]byte, SaltLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Guessable PINs refused at provisioning time
var commonPins = map[string]bool{
	"0000": true, "1111": true, "1234": true, "4321": true,
	"1212": true, "2222": true, "9999": true, "123456": true,
	"000000": true, "111111": true, "654321": true, "121212": true,
}

// ValidatePin enforces minimum strength for a vault PIN being provisioned
func ValidatePin(pin string) error {
	if len(pin) < MinPinLen {
		return fmt.Errorf("pin must be at least %d characters", MinPinLen)
	}
	if len(pin) > MaxPinLen {
		return fmt.Errorf("pin must be at most %d characters", MaxPinLen)
	}
	if commonPins[pin] {
		return fmt.Errorf("pin is too common")
	}
	return nil
}

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PrefixLength is the number of leading key characters stored in plaintext
// for indexed lookup. The rest of the key is only stored as a bcrypt hash.
const PrefixLength = 8

// bcryptCost balances login latency against brute-force resistance.
const bcryptCost = 12

// ErrInvalidAPIKey is returned when an API key does not match any vendor.
var ErrInvalidAPIKey = errors.New("invalid API key")

// GenerateAPIKey creates a new random API key as a 64-character hex string.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// KeyPrefix returns the indexed lookup prefix of an API key.
func KeyPrefix(apiKey string) string {
	if len(apiKey) < PrefixLength {
		return apiKey
	}
	return apiKey[:PrefixLength]
}

// HashAPIKey returns the bcrypt hash of an API key for at-rest storage.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey reports whether the presented key matches the stored hash.
func VerifyAPIKey(hash, apiKey string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil
}

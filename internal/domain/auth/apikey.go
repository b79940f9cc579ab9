package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// API keys authenticate server-to-server callers (the invoice workflow
// calling the allocation endpoint). Keys are random, shown once at tenant
// provisioning, and only their bcrypt hash is stored on the tenant row.

const apiKeyBytes = 32

// GenerateAPIKey returns a new random API key and its bcrypt hash.
func GenerateAPIKey() (key string, hash string, err error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	key = base64.RawURLEncoding.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash api key: %w", err)
	}
	return key, string(hashed), nil
}

// CheckAPIKey reports whether key matches the stored bcrypt hash.
func CheckAPIKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

package utils

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptPrefixes mark API_KEYS entries stored as bcrypt hashes.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IsHashedAPIKey reports whether an allowed entry is a bcrypt hash.
func IsHashedAPIKey(entry string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(entry, p) {
			return true
		}
	}
	return false
}

// HashAPIKey returns a bcrypt hash suitable for API_KEYS.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MatchAPIKey compares key against every allowed entry. Plain entries are
// compared in constant time; bcrypt entries are verified against the hash.
func MatchAPIKey(key string, allowed []string) bool {
	if key == "" {
		return false
	}
	matched := 0
	for _, valid := range allowed {
		if IsHashedAPIKey(valid) {
			if bcrypt.CompareHashAndPassword([]byte(valid), []byte(key)) == nil {
				matched = 1
			}
			continue
		}
		matched |= subtle.ConstantTimeCompare([]byte(key), []byte(valid))
	}
	return matched == 1
}

package util

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// HashPassword hashes a plain text password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword checks if a plain text password matches a hashed password
func VerifyPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}

// BurnPasswordCheck runs a bcrypt comparison against a throwaway hash so that
// lookups for unknown accounts take as long as a real password check.
func BurnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("storefront-unknown-account"), bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

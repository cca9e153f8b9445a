package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// CodeLength is the number of decimal digits in a login code.
	CodeLength = 6
	// SessionTokenBytes is the entropy of a login session token (256 bits).
	SessionTokenBytes = 32

	codeMin  = 100000
	codeSpan = 900000
)

// GenerateLoginCode returns a uniformly distributed code in [100000, 999999].
func GenerateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate login code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

// GenerateSessionToken returns a hex encoded 256-bit random token.
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashLoginCode returns the hex SHA-256 digest of code, or an HMAC-SHA256
// keyed with key when key is not empty.
func HashLoginCode(code, key string) string {
	if key == "" {
		sum := sha256.Sum256([]byte(code))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// LoginCodeMatches hashes input and compares it with storedHash in constant time.
func LoginCodeMatches(input, storedHash, key string) bool {
	computed := HashLoginCode(input, key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// IsValidLoginCodeFormat reports whether s is exactly CodeLength ASCII digits.
func IsValidLoginCodeFormat(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

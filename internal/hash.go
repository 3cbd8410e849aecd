package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// HashOTP returns the stored form of a one-time code. Surrounding whitespace
// is ignored so a pasted code still matches.
func HashOTP(code string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(code)))
}

// OTPMatches compares a submitted code against a stored hash in constant time.
func OTPMatches(stored [32]byte, submitted string) bool {
	h := HashOTP(submitted)
	return subtle.ConstantTimeCompare(stored[:], h[:]) == 1
}

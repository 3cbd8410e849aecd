package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	sessionIDBytes = 16
	minOTPDigits   = 6
	maxOTPDigits   = 10
)

// sessionIDDecoding rejects non-zero trailing bits, keeping the text form
// canonical.
var sessionIDDecoding = base64.RawURLEncoding.Strict()

// SessionID is the opaque identifier handed to clients. Its text form is
// unpadded base64url.
type SessionID [sessionIDBytes]byte

// NewSessionID draws a session identifier from crypto/rand.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	if _, err := rand.Read(sid[:]); err != nil {
		return SessionID{}, fmt.Errorf("session id: %w", err)
	}
	return sid, nil
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes the text form produced by String.
func ParseSessionID(text string) (SessionID, error) {
	var sid SessionID
	if base64.RawURLEncoding.DecodedLen(len(text)) != sessionIDBytes {
		return sid, errors.New("invalid session id size")
	}
	n, err := sessionIDDecoding.Decode(sid[:], []byte(text))
	if err != nil {
		return SessionID{}, err
	}
	if n != sessionIDBytes {
		return SessionID{}, errors.New("invalid session id size")
	}
	return sid, nil
}

// NewOTP returns a numeric code of the given length with every digit drawn
// uniformly. Bytes at or above 250 are rejected so the modulo is unbiased.
func NewOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.New("invalid otp digits")
	}

	out := make([]byte, 0, digits)
	var pool [16]byte
	for len(out) < digits {
		if _, err := rand.Read(pool[:]); err != nil {
			return "", fmt.Errorf("otp: %w", err)
		}
		for _, b := range pool {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == digits {
				break
			}
		}
	}
	return string(out), nil
}

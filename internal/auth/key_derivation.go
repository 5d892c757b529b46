package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeyLength suits HMAC-SHA256 and gorilla/csrf's 32-byte auth key.
const DerivedKeyLength = 32

const purposeCSRF = "clubsite-csrf-v1"

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a key from masterSecret with HKDF-SHA256. Different
// purposes yield independent keys.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	r := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	key := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveCSRFKey derives the gorilla/csrf authentication key, used when no
// explicit CSRF key is configured.
func DeriveCSRFKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeCSRF)
}

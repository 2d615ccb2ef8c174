package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt will hash.
const MaxPasswordBytes = 72

// ErrMismatchedPassword reports a plaintext that does not match the stored hash.
var ErrMismatchedPassword = bcrypt.ErrMismatchedHashAndPassword

// HashPassword hashes plaintext using bcrypt at the given cost.
func HashPassword(plain string, cost int) ([]byte, error) {
	if len(plain) > MaxPasswordBytes {
		return nil, errors.New("password exceeds bcrypt input limit")
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// ComparePassword compares plaintext to hashed secret in constant time.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

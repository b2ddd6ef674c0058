// Package crypto implements server-side password hashing and verification.
package crypto

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

// HashPassword returns a bcrypt hash of the password.
// bcrypt reads at most 72 bytes of input; longer passwords are truncated.
func HashPassword(password string) (string, error) {
	pw := truncate([]byte(password))
	h, err := bcrypt.GenerateFromPassword(pw, bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(password, hash string) bool {
	pw := truncate([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hash), pw) == nil
}

func truncate(pw []byte) []byte {
	if len(pw) > 72 {
		return pw[:72]
	}
	return pw
}

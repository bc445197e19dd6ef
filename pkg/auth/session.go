package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SessionDuration is the absolute lifetime of an admin session.
const SessionDuration = 24 * time.Hour

const sessionCookieName = "admin_session"

// SessionCookieName returns the admin session cookie name.
func SessionCookieName() string {
	return sessionCookieName
}

// GenerateSessionToken returns 32 random bytes as a 64-char hex string.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ErrPasswordNotConfigured is returned when neither a password nor a hash is set.
var ErrPasswordNotConfigured = errors.New("admin password not configured")

// PasswordChecker verifies the single operator password. A bcrypt hash
// takes precedence over the plain secret.
type PasswordChecker struct {
	plain []byte
	hash  []byte
}

// NewPasswordChecker creates a PasswordChecker from the configured secret and/or bcrypt hash.
func NewPasswordChecker(plain, hash string) *PasswordChecker {
	return &PasswordChecker{plain: []byte(plain), hash: []byte(hash)}
}

// Check reports whether candidate matches the configured password.
func (c *PasswordChecker) Check(candidate string) (bool, error) {
	switch {
	case len(c.hash) > 0:
		err := bcrypt.CompareHashAndPassword(c.hash, []byte(candidate))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	case len(c.plain) > 0:
		return subtle.ConstantTimeCompare(c.plain, []byte(candidate)) == 1, nil
	default:
		return false, ErrPasswordNotConfigured
	}
}

package model

import "time"

// AdminSession is an opaque bearer token issued at admin login.
type AdminSession struct {
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session has not yet expired at now.
func (s *AdminSession) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

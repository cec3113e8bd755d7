package models

import "time"

// TokenPurposeLogin is the only purpose currently issued.
const TokenPurposeLogin = "login"

// MagicToken is the stored form of a single-use login credential. Only the
// sha256 hash of the presented token is kept; UsedAt moves from null to
// non-null at most once and is immutable afterwards.
type MagicToken struct {
	ID        string
	TokenHash string
	UserID    string
	Purpose   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

package domain

import "time"

type User struct {
	ID           string
	Name         string
	Email        string // unique
	PasswordHash string // argon2id encoded
	// VerifyTokenHash holds the fingerprint of the outstanding email
	// verification token. Cleared once the token is consumed.
	VerifyTokenHash string
	VerifySentAt    *time.Time
	VerifiedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Verified reports whether the user has completed email verification.
func (u User) Verified() bool { return u.VerifiedAt != nil }

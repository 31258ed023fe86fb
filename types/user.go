package types

import "time"

// User represents an account in the system.
// Accounts are issued by the identity endpoints and referenced everywhere
// else only through their opaque identifier.
type User struct {
	// ID is the opaque unique identifier of the user (a generated UUID).
	ID string `json:"id" db:"id"`

	// Email is the user's login email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// EmailConfirmed reports whether the address has been confirmed.
	// Accounts created while confirmation is required start out false.
	EmailConfirmed bool `json:"email_confirmed" db:"email_confirmed"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent account update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the authenticated view of a user as seen by the portal:
// the opaque identifier plus the email, nothing else.
type Identity struct {
	// UserID is the opaque user identifier.
	UserID string `json:"user_id"`

	// Email is the address the identity signed in with.
	Email string `json:"email"`
}

// ResetToken is a single-use password recovery token. Only the SHA-256 hash
// of the emailed token is kept at rest.
type ResetToken struct {
	// TokenHash is the base64url-encoded SHA-256 hash of the emailed token.
	TokenHash string `json:"-" db:"token_hash"`

	// UserID is the account the token recovers.
	UserID string `json:"user_id" db:"user_id"`

	// ExpiresAt is the instant after which the token is no longer honoured.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// CreatedAt is the timestamp when the token was issued.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Package client is the portal's API surface: an interface over the backend
// plus the HTTP implementation the terminal portal uses. The controllers in
// internal/portal depend only on the interface, so tests run against fakes.
package client

import (
	"context"
	"fmt"

	"github.com/aussieverify/aussieverify/types"
)

// Session is an established backend session.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`

	// Recovery marks a session that may only update the password.
	Recovery bool `json:"recovery,omitempty"`
}

// SessionEvent announces a session change. Session is nil when the session
// was lost (logout or rejection).
type SessionEvent struct {
	Session *Session
}

// APIError carries a backend error response. The message is shown to the
// user verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Client is everything the portal needs from the backend.
type Client interface {
	// Register creates an account. A nil session with a nil error means the
	// account needs email confirmation before it can sign in.
	Register(ctx context.Context, email, password string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Logout(ctx context.Context) error

	// CurrentSession returns the held session, or nil.
	CurrentSession() *Session

	SendReset(ctx context.Context, email string) error

	// ExchangeRecovery trades an emailed recovery token for a
	// recovery-scoped session.
	ExchangeRecovery(ctx context.Context, token string) (*Session, error)

	// UpdatePassword replaces the credential and returns the fresh full
	// session the backend issues.
	UpdatePassword(ctx context.Context, newPassword string) (*Session, error)

	Profile(ctx context.Context) (types.Profile, error)
	SaveProfile(ctx context.Context, profile types.Profile) (types.Profile, error)
	Verifications(ctx context.Context) ([]types.Verification, error)
	AddVerification(ctx context.Context, draft types.VerificationDraft) (types.Verification, error)
	DeleteVerification(ctx context.Context, id string) error
	Export(ctx context.Context) (types.ExportDocument, error)

	// SubscribeSessions returns a channel of session changes and an
	// unsubscribe func. The current session is not replayed.
	SubscribeSessions() (<-chan SessionEvent, func())

	Close() error
}

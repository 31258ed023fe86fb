package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussieverify/aussieverify/internal/mailer"
	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/aussieverify/aussieverify/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmailTaken is returned when registering an address that already
	// has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrInvalidCredentials is returned for a failed sign-in. The message
	// is deliberately the same for unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRecoveryToken is returned when a recovery token is
	// unknown, already used, or expired.
	ErrInvalidRecoveryToken = errors.New("recovery link is invalid or has expired")
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// ResetTokenRepository defines persistence operations for recovery tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, token types.ResetToken) error
	Consume(ctx context.Context, tokenHash string) (string, error)
}

// MailPublisher sends a reset-mail job to the queue. Satisfied by *mq.MQ.
type MailPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// IdentityService implements the identity operations: sign-up, sign-in,
// password recovery, and credential updates. Session token issuance lives in
// the HTTP layer; this service deals in users and credentials only.
type IdentityService struct {
	users         UserRepository
	tokens        ResetTokenRepository
	mail          MailPublisher
	portalBaseURL string
	recoveryTTL   time.Duration
	requireEmail  bool
}

// NewIdentityService constructs the service. mail may be nil, in which case
// recovery tokens are still issued but no mail job is published.
func NewIdentityService(
	users UserRepository,
	tokens ResetTokenRepository,
	mail MailPublisher,
	portalBaseURL string,
	recoveryTTL time.Duration,
	requireEmailConfirmation bool,
) *IdentityService {
	return &IdentityService{
		users:         users,
		tokens:        tokens,
		mail:          mail,
		portalBaseURL: strings.TrimRight(portalBaseURL, "/"),
		recoveryTTL:   recoveryTTL,
		requireEmail:  requireEmailConfirmation,
	}
}

// RequiresEmailConfirmation reports whether new accounts must confirm their
// address before receiving a session.
func (s *IdentityService) RequiresEmailConfirmation() bool {
	return s.requireEmail
}

// Register creates a new account with a bcrypt-hashed credential.
func (s *IdentityService) Register(ctx context.Context, email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return types.User{}, errors.New("email and password are required")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check existing account: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   string(hashed),
		EmailConfirmed: !s.requireEmail,
	})
	if err != nil {
		return types.User{}, fmt.Errorf("create account: %w", err)
	}
	return user, nil
}

// Authenticate verifies a credential pair and returns the account.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser loads one account by id.
func (s *IdentityService) GetUser(ctx context.Context, id string) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

// StartRecovery issues a single-use recovery token for the address and
// publishes the reset mail. An unknown address is not an error: the caller
// always reports "link sent" so accounts cannot be enumerated.
func (s *IdentityService) StartRecovery(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}

	token, err := newRecoveryToken()
	if err != nil {
		return fmt.Errorf("generate recovery token: %w", err)
	}

	if err := s.tokens.Create(ctx, types.ResetToken{
		TokenHash: hashRecoveryToken(token),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.recoveryTTL),
	}); err != nil {
		return fmt.Errorf("store recovery token: %w", err)
	}

	if s.mail == nil {
		return nil
	}

	payload, err := mailer.EncodeJob(mailer.Job{
		To:   user.Email,
		Link: s.recoveryLink(token),
	})
	if err != nil {
		return err
	}
	if _, err := s.mail.Publish(ctx, mailer.Channel, payload, map[string]string{"kind": "password-reset"}); err != nil {
		return fmt.Errorf("queue reset mail: %w", err)
	}
	return nil
}

// ConsumeRecovery exchanges an emailed recovery token for its account.
// Tokens are single-use; a second exchange fails.
func (s *IdentityService) ConsumeRecovery(ctx context.Context, token string) (types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.User{}, ErrInvalidRecoveryToken
	}

	userID, err := s.tokens.Consume(ctx, hashRecoveryToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidRecoveryToken
		}
		return types.User{}, fmt.Errorf("consume recovery token: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, fmt.Errorf("load account: %w", err)
	}
	return user, nil
}

// SetPassword replaces the credential for one account.
func (s *IdentityService) SetPassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, string(hashed))
}

// recoveryLink builds the portal callback URL carrying the recovery marker
// and the raw token.
func (s *IdentityService) recoveryLink(token string) string {
	q := url.Values{}
	q.Set("type", "recovery")
	q.Set("token", token)
	return fmt.Sprintf("%s/?%s", s.portalBaseURL, q.Encode())
}

func newRecoveryToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRecoveryToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

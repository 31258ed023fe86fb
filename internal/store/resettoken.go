package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussieverify/aussieverify/types"
)

// ResetTokenRepository handles persistence for password recovery tokens.
// Tokens are stored hashed and are single-use: Consume deletes on read.
type ResetTokenRepository struct {
	db *sql.DB
}

func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token types.ResetToken) error {
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO password_reset_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_hash) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, token.TokenHash, token.UserID, token.ExpiresAt, token.CreatedAt)
	return err
}

// Consume deletes the token row and returns the owning user id. Expired or
// unknown tokens report ErrNotFound.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string) (string, error) {
	const query = `
		DELETE FROM password_reset_tokens
		WHERE token_hash = $1 AND expires_at > now()
		RETURNING user_id`
	var userID string
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return userID, nil
}

// DeleteExpired clears out tokens past their expiry.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) error {
	const query = `DELETE FROM password_reset_tokens WHERE expires_at <= now()`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

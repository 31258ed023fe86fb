package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussieverify/aussieverify/types"
)

// ProfileRepository handles persistence for profiles. Rows are keyed by the
// owning user identifier; Upsert carries create-or-replace semantics.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get returns the profile row for a user, or ErrNotFound when the user has
// never saved one. Callers map absence to the default profile.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (types.Profile, error) {
	const query = `
		SELECT user_id, org_name, role, phone, region, updated_at
		FROM profiles
		WHERE user_id = $1`
	var profile types.Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.OrgName,
		&profile.Role,
		&profile.Phone,
		&profile.Region,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	return profile, nil
}

// Upsert creates or replaces the profile row for profile.UserID.
func (r *ProfileRepository) Upsert(ctx context.Context, profile types.Profile) (types.Profile, error) {
	profile.UpdatedAt = time.Now()

	const query = `
		INSERT INTO profiles (user_id, org_name, role, phone, region, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET org_name = EXCLUDED.org_name,
			role = EXCLUDED.role,
			phone = EXCLUDED.phone,
			region = EXCLUDED.region,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		profile.UserID,
		profile.OrgName,
		profile.Role,
		profile.Phone,
		profile.Region,
		profile.UpdatedAt,
	); err != nil {
		return types.Profile{}, err
	}
	return profile, nil
}

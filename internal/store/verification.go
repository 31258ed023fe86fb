package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussieverify/aussieverify/types"
)

// VerificationRepository handles persistence for verification records.
// Every operation is scoped by the owning user identifier.
type VerificationRepository struct {
	db *sql.DB
}

func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// ListByUser returns every record owned by userID, newest first.
func (r *VerificationRepository) ListByUser(ctx context.Context, userID string) ([]types.Verification, error) {
	const query = `
		SELECT id, user_id, created_at, contractor_name, trade, abn, licence, insurance, notes, outcome
		FROM verifications
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.Verification, 0)
	for rows.Next() {
		var record types.Verification
		if err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.CreatedAt,
			&record.ContractorName,
			&record.Trade,
			&record.ABN,
			&record.Licence,
			&record.Insurance,
			&record.Notes,
			&record.Outcome,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Insert stores a new record. The creation timestamp is assigned here,
// server-side, not taken from the caller.
func (r *VerificationRepository) Insert(ctx context.Context, record types.Verification) (types.Verification, error) {
	record.CreatedAt = time.Now()

	const query = `
		INSERT INTO verifications (id, user_id, created_at, contractor_name, trade, abn, licence, insurance, notes, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		record.CreatedAt,
		record.ContractorName,
		record.Trade,
		record.ABN,
		record.Licence,
		record.Insurance,
		record.Notes,
		record.Outcome,
	); err != nil {
		return types.Verification{}, err
	}
	return record, nil
}

// Delete removes one record, scoped by both record id and owning user id.
// A mismatch on either key deletes nothing and reports ErrNotFound.
func (r *VerificationRepository) Delete(ctx context.Context, id, userID string) error {
	const query = `DELETE FROM verifications WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/aussieverify/aussieverify/types"
	"github.com/google/uuid"
)

var (
	// ErrContractorNameRequired rejects a draft whose contractor name is
	// empty or whitespace. Checked before the store is touched.
	ErrContractorNameRequired = errors.New("contractor/business name is required")

	// ErrInvalidOutcome rejects outcomes outside the closed enumeration.
	ErrInvalidOutcome = errors.New("outcome must be one of verified, review, flagged")

	// ErrInvalidRegion rejects region codes outside the closed set.
	ErrInvalidRegion = errors.New("region must be an Australian state or territory code")
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (types.Profile, error)
	Upsert(ctx context.Context, profile types.Profile) (types.Profile, error)
}

// VerificationRepository defines persistence operations for verification
// records.
type VerificationRepository interface {
	ListByUser(ctx context.Context, userID string) ([]types.Verification, error)
	Insert(ctx context.Context, record types.Verification) (types.Verification, error)
	Delete(ctx context.Context, id, userID string) error
}

// ArtifactStore persists export artifacts. Satisfied by *storage.Storage.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// PortalService implements the record-store operations for one
// authenticated identity: profile read/upsert, verification
// insert/list/delete, and export.
type PortalService struct {
	profiles      ProfileRepository
	verifications VerificationRepository
	artifacts     ArtifactStore
}

// NewPortalService constructs the service. artifacts may be nil, in which
// case exports are returned to the caller without a stored copy.
func NewPortalService(profiles ProfileRepository, verifications VerificationRepository, artifacts ArtifactStore) *PortalService {
	return &PortalService{
		profiles:      profiles,
		verifications: verifications,
		artifacts:     artifacts,
	}
}

// Profile returns the user's profile, or the caller-visible default when no
// row exists. Absence is not an error.
func (s *PortalService) Profile(ctx context.Context, userID string) (types.Profile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.DefaultProfile(userID), nil
		}
		return types.Profile{}, err
	}
	return profile, nil
}

// SaveProfile upserts the profile keyed by profile.UserID.
func (s *PortalService) SaveProfile(ctx context.Context, profile types.Profile) (types.Profile, error) {
	if profile.Region == "" {
		profile.Region = types.DefaultRegion
	}
	if !types.ValidRegion(profile.Region) {
		return types.Profile{}, ErrInvalidRegion
	}
	return s.profiles.Upsert(ctx, profile)
}

// Verifications lists the user's records, newest first.
func (s *PortalService) Verifications(ctx context.Context, userID string) ([]types.Verification, error) {
	return s.verifications.ListByUser(ctx, userID)
}

// AddVerification validates a draft and inserts it for userID. The id is
// generated here; the creation timestamp is assigned by the store.
func (s *PortalService) AddVerification(ctx context.Context, userID string, draft types.VerificationDraft) (types.Verification, error) {
	if strings.TrimSpace(draft.ContractorName) == "" {
		return types.Verification{}, ErrContractorNameRequired
	}
	if draft.Outcome == "" {
		draft.Outcome = types.OutcomeVerified
	}
	if !types.ValidOutcome(draft.Outcome) {
		return types.Verification{}, ErrInvalidOutcome
	}

	return s.verifications.Insert(ctx, types.Verification{
		ID:             uuid.NewString(),
		UserID:         userID,
		ContractorName: draft.ContractorName,
		Trade:          draft.Trade,
		ABN:            draft.ABN,
		Licence:        draft.Licence,
		Insurance:      draft.Insurance,
		Notes:          draft.Notes,
		Outcome:        draft.Outcome,
	})
}

// RemoveVerification deletes one record, scoped by both the record id and
// the owning user id.
func (s *PortalService) RemoveVerification(ctx context.Context, id, userID string) error {
	return s.verifications.Delete(ctx, id, userID)
}

// Export builds the full snapshot document for a user and, when an artifact
// store is configured, keeps a dated copy under exports/{userID}/.
func (s *PortalService) Export(ctx context.Context, user types.User) (types.ExportDocument, error) {
	profile, err := s.Profile(ctx, user.ID)
	if err != nil {
		return types.ExportDocument{}, fmt.Errorf("load profile: %w", err)
	}
	records, err := s.verifications.ListByUser(ctx, user.ID)
	if err != nil {
		return types.ExportDocument{}, fmt.Errorf("load verifications: %w", err)
	}

	doc := types.ExportDocument{
		UserID:        user.ID,
		Email:         user.Email,
		Profile:       profile,
		Verifications: records,
	}

	if s.artifacts != nil {
		payload, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return types.ExportDocument{}, fmt.Errorf("serialize export: %w", err)
		}
		key := fmt.Sprintf("exports/%s/%s", user.ID, types.ExportFileName(time.Now()))
		if err := s.artifacts.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
			return types.ExportDocument{}, fmt.Errorf("store export artifact: %w", err)
		}
	}

	return doc, nil
}

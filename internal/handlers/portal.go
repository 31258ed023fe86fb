package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussieverify/aussieverify/internal/services"
	"github.com/aussieverify/aussieverify/internal/store"
	"github.com/aussieverify/aussieverify/types"
	"github.com/go-chi/chi/v5"
)

// PortalHandler provides the authenticated record-store endpoints.
type PortalHandler struct {
	portal   *services.PortalService
	identity *services.IdentityService
}

// NewPortalHandler constructs a PortalHandler with the provided dependencies.
func NewPortalHandler(portal *services.PortalService, identity *services.IdentityService) *PortalHandler {
	return &PortalHandler{portal: portal, identity: identity}
}

// PortalRouter registers portal routes on the given router. The caller is
// expected to have mounted RequireAuth above these.
func PortalRouter(r chi.Router, portal *services.PortalService, identity *services.IdentityService) {
	handler := NewPortalHandler(portal, identity)

	r.Get("/profile", handler.GetProfile)
	r.Put("/profile", handler.SaveProfile)
	r.Get("/verifications", handler.ListVerifications)
	r.Post("/verifications", handler.AddVerification)
	r.Delete("/verifications/{verificationID}", handler.DeleteVerification)
	r.Post("/export", handler.Export)
}

// GetProfile returns the caller's profile. A user with no saved profile gets
// the default, never a 404.
func (h *PortalHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.portal.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// SaveProfile upserts the caller's profile.
func (h *PortalHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	profile, err := h.portal.SaveProfile(r.Context(), types.Profile{
		UserID:  userID,
		OrgName: req.OrgName,
		Role:    req.Role,
		Phone:   req.Phone,
		Region:  req.Region,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidRegion) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListVerifications returns the caller's records, newest first.
func (h *PortalHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	records, err := h.portal.Verifications(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load verifications")
		return
	}
	if records == nil {
		records = []types.Verification{}
	}
	writeJSON(w, http.StatusOK, records)
}

// AddVerification inserts one record for the caller.
func (h *PortalHandler) AddVerification(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var draft types.VerificationDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	record, err := h.portal.AddVerification(r.Context(), userID, draft)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContractorNameRequired),
			errors.Is(err, services.ErrInvalidOutcome):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to save verification")
		}
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// DeleteVerification removes one record. The delete is keyed by both the
// record id and the caller, so another user's id yields a 404.
func (h *PortalHandler) DeleteVerification(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	verificationID := chi.URLParam(r, "verificationID")
	if verificationID == "" {
		writeError(w, http.StatusBadRequest, "missing verification id")
		return
	}

	if err := h.portal.RemoveVerification(r.Context(), verificationID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "verification not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete verification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export returns the caller's full snapshot document.
func (h *PortalHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.identity.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	doc, err := h.portal.Export(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ProfileRequest carries the editable profile fields.
type ProfileRequest struct {
	OrgName string `json:"org_name"`
	Role    string `json:"role"`
	Phone   string `json:"phone"`
	Region  string `json:"region"`
}

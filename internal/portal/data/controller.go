// Package data owns the portal's in-memory copy of the profile and the
// verification history, and the operations over them.
package data

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/aussieverify/aussieverify/internal/portal/client"
	"github.com/aussieverify/aussieverify/types"
	"golang.org/x/sync/errgroup"
)

// View is the portal panel in the foreground.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewHistory   View = "history"
	ViewNewCheck  View = "new-check"
	ViewProfile   View = "profile"
)

// Counts is the dashboard aggregate over the full record list.
type Counts struct {
	Total    int
	Verified int
	Review   int
	Flagged  int
}

// Snapshot is a consistent copy of the controller's state.
type Snapshot struct {
	Profile types.Profile
	Records []types.Verification
	View    View
}

// Controller loads and mutates portal data through the backend client. All
// state behind the mutex is replaced wholesale on refresh, never patched.
type Controller struct {
	api client.Client

	mu      sync.RWMutex
	profile types.Profile
	records []types.Verification
	view    View
}

// NewController constructs a controller with empty state. Call Refresh to
// populate it.
func NewController(api client.Client) *Controller {
	return &Controller{api: api, view: ViewDashboard}
}

// Refresh fetches the profile and the record list concurrently and joins
// them. On any failure the held state is left untouched; on success both are
// swapped in together.
func (c *Controller) Refresh(ctx context.Context) error {
	var (
		profile types.Profile
		records []types.Verification
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = c.api.Profile(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = c.api.Verifications(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	c.profile = profile
	c.records = records
	c.mu.Unlock()
	return nil
}

// SaveProfile upserts the profile. The held copy is not patched
// optimistically; it updates on the next refresh.
func (c *Controller) SaveProfile(ctx context.Context, profile types.Profile) error {
	if _, err := c.api.SaveProfile(ctx, profile); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// AddRecord validates and submits one draft. An empty or whitespace
// contractor name is rejected before any network call. On success the state
// is refreshed and the history view comes to the foreground.
func (c *Controller) AddRecord(ctx context.Context, draft types.VerificationDraft) error {
	if strings.TrimSpace(draft.ContractorName) == "" {
		return ErrNameRequired
	}

	if _, err := c.api.AddVerification(ctx, draft); err != nil {
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.view = ViewHistory
	c.mu.Unlock()
	return nil
}

// RemoveRecord deletes one record by id, then refreshes.
func (c *Controller) RemoveRecord(ctx context.Context, id string) error {
	if err := c.api.DeleteVerification(ctx, id); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// FilteredRecords returns the records whose searchable text contains the
// query, case-insensitively. An empty query returns everything; source order
// is preserved.
func (c *Controller) FilteredRecords(query string) []types.Verification {
	c.mu.RLock()
	records := c.records
	c.mu.RUnlock()

	return FilterRecords(records, query)
}

// FilterRecords is the pure filter over any record list.
func FilterRecords(records []types.Verification, query string) []types.Verification {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return records
	}

	matched := make([]types.Verification, 0, len(records))
	for _, record := range records {
		if strings.Contains(searchText(record), query) {
			matched = append(matched, record)
		}
	}
	return matched
}

func searchText(record types.Verification) string {
	return strings.ToLower(strings.Join([]string{
		record.ContractorName,
		record.Trade,
		record.ABN,
		record.Licence,
		record.Insurance,
		record.Notes,
		string(record.Outcome),
	}, " "))
}

// CountRecords is the pure aggregate over any record list.
func CountRecords(records []types.Verification) Counts {
	counts := Counts{Total: len(records)}
	for _, record := range records {
		switch record.Outcome {
		case types.OutcomeVerified:
			counts.Verified++
		case types.OutcomeReview:
			counts.Review++
		case types.OutcomeFlagged:
			counts.Flagged++
		}
	}
	return counts
}

// Counts aggregates the held records.
func (c *Controller) Counts() Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CountRecords(c.records)
}

// View returns the foreground panel.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// SetView brings a panel to the foreground.
func (c *Controller) SetView(view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
}

// Snapshot returns a consistent copy of the held state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]types.Verification, len(c.records))
	copy(records, c.records)

	return Snapshot{
		Profile: c.profile,
		Records: records,
		View:    c.view,
	}
}

// Export serializes the held snapshot for the given identity, returning the
// document bytes and the dated file name. Pure over the snapshot; no network.
func (c *Controller) Export(userID, email string, now time.Time) ([]byte, string, error) {
	snapshot := c.Snapshot()

	doc := types.ExportDocument{
		UserID:        userID,
		Email:         email,
		Profile:       snapshot.Profile,
		Verifications: snapshot.Records,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return payload, types.ExportFileName(now), nil
}

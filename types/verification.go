package types

import "time"

// Outcome classifies a verification record. The enumeration is closed:
// exactly the three values below are accepted.
type Outcome string

const (
	// OutcomeVerified means the contractor's signals checked out.
	OutcomeVerified Outcome = "verified"

	// OutcomeReview means follow-up is required before a decision.
	OutcomeReview Outcome = "review"

	// OutcomeFlagged means the contractor should not be engaged.
	OutcomeFlagged Outcome = "flagged"
)

// Label returns the display label for an outcome. The mapping is total over
// the three-value enumeration; unknown values fall back to the raw string.
func (o Outcome) Label() string {
	switch o {
	case OutcomeVerified:
		return "Verified"
	case OutcomeReview:
		return "Needs review"
	case OutcomeFlagged:
		return "Flagged"
	}
	return string(o)
}

// ValidOutcome reports whether o is one of the three allowed outcomes.
func ValidOutcome(o Outcome) bool {
	return o == OutcomeVerified || o == OutcomeReview || o == OutcomeFlagged
}

// Verification is a single checklist outcome entry for one contractor,
// owned by exactly one user. Records are immutable once created; the only
// mutation is deletion.
type Verification struct {
	// ID is the generated unique identifier of the record.
	ID string `json:"id" db:"id"`

	// UserID is the owning user identifier. Ownership scopes every read
	// and the delete; it is never taken from client payloads.
	UserID string `json:"user_id" db:"user_id"`

	// CreatedAt is the server-assigned creation timestamp. Listings are
	// ordered by this field, newest first.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ContractorName is the contractor or business name. Required; a record
	// with an empty name is rejected before it reaches the store.
	ContractorName string `json:"contractor_name" db:"contractor_name"`

	// Trade is the trade or category, e.g. "Plumbing".
	Trade string `json:"trade" db:"trade"`

	// ABN is the Australian Business Number as entered.
	ABN string `json:"abn" db:"abn"`

	// Licence is the licence or registration reference.
	Licence string `json:"licence" db:"licence"`

	// Insurance describes the insurance evidence sighted.
	Insurance string `json:"insurance" db:"insurance"`

	// Notes holds free-text evidence notes and rationale.
	Notes string `json:"notes" db:"notes"`

	// Outcome is the recorded checklist outcome.
	Outcome Outcome `json:"outcome" db:"outcome"`
}

// VerificationDraft is the client-supplied portion of a new record.
// Everything else (id, owner, creation time) is assigned by the server.
type VerificationDraft struct {
	ContractorName string  `json:"contractor_name"`
	Trade          string  `json:"trade"`
	ABN            string  `json:"abn"`
	Licence        string  `json:"licence"`
	Insurance      string  `json:"insurance"`
	Notes          string  `json:"notes"`
	Outcome        Outcome `json:"outcome"`
}

// FormatTimestamp renders an RFC 3339 timestamp for display. An unparseable
// input is returned unchanged rather than failing.
func FormatTimestamp(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("02 Jan 2006 15:04")
}

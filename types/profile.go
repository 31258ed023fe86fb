package types

import "time"

// DefaultRegion is the region a profile starts out with before the user has
// ever saved one.
const DefaultRegion = "NSW"

// Regions is the closed set of Australian state and territory codes a
// profile may carry.
var Regions = []string{"NSW", "VIC", "QLD", "WA", "SA", "TAS", "ACT", "NT"}

// Profile holds per-user organisational metadata. There is at most one
// profile per user identifier; a missing row is presented to callers as
// DefaultProfile, never as an error.
type Profile struct {
	// UserID is the owning user identifier (primary key).
	UserID string `json:"user_id" db:"user_id"`

	// OrgName is the user's organisation name.
	OrgName string `json:"org_name" db:"org_name"`

	// Role is the user's role within the organisation.
	Role string `json:"role" db:"role"`

	// Phone is a contact phone number.
	Phone string `json:"phone" db:"phone"`

	// Region is one of the codes in Regions.
	Region string `json:"region" db:"region"`

	// UpdatedAt is the timestamp of the most recent save.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultProfile returns the implicit empty profile for a user that has
// never saved one: empty strings everywhere and the default region.
func DefaultProfile(userID string) Profile {
	return Profile{
		UserID: userID,
		Region: DefaultRegion,
	}
}

// ValidRegion reports whether code is one of the allowed region codes.
func ValidRegion(code string) bool {
	for _, region := range Regions {
		if region == code {
			return true
		}
	}
	return false
}

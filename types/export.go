package types

import (
	"fmt"
	"time"
)

// ExportDocument is the downloadable snapshot of one identity's data:
// who they are, their profile, and every verification record they own.
type ExportDocument struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	Profile       Profile        `json:"profile"`
	Verifications []Verification `json:"verifications"`
}

// ExportFileName returns the artifact name for an export taken at t,
// e.g. "aussie-verify-export_2026-08-28.json".
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("aussie-verify-export_%s.json", t.Format("2006-01-02"))
}

package store

import "errors"

// ErrNotFound is returned when a record does not exist, including deletes
// whose ownership scope did not match any row.
var ErrNotFound = errors.New("not found")

package data

import "errors"

// ErrNameRequired rejects a draft whose contractor name is empty or
// whitespace, before any network call is made.
var ErrNameRequired = errors.New("contractor/business name is required")

package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by store operations. Callers branch with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrNotFound means the row does not exist within the caller's tenant
	// scope. Cross-tenant IDs resolve to this, never to another owner's row.
	ErrNotFound = errors.New("not found")

	// ErrOverlap means the half-open no-overlap invariant blocked the write.
	ErrOverlap = errors.New("event overlaps with an existing booking")

	// ErrConflict is a uniqueness race during client creation. Resolve
	// recovers from it internally; it only escapes if the re-fetch fails.
	ErrConflict = errors.New("concurrent insert conflict")
)

// ValidationError reports malformed input, naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

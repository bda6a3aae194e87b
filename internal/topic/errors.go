package topic

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid facet")

	// ErrVersionConflict is returned by a store when a conditional write
	// observes a version other than the one the caller read.
	ErrVersionConflict = errors.New("topic group version conflict")

	// ErrConflictExhausted means the optimistic retry budget ran out.
	// The group is unchanged; the caller should retry the whole operation later.
	ErrConflictExhausted = errors.New("topic group conflict retries exhausted")

	// ErrStoreUnavailable wraps persistence I/O failures.
	ErrStoreUnavailable = errors.New("topic store unavailable")
)

// ValidationError reports a facet field that is empty or out of range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid facet: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid facet: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an event id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict marks operations rejected by the lifecycle state machine.
	// Callers must not retry them blindly.
	ErrStateConflict = errors.New("state conflict")
	// ErrSnapshotOrder is returned when a snapshot is not newer than the last one.
	ErrSnapshotOrder = errors.New("snapshot timestamp not increasing")
)

// ValidationError is a malformed request. It is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ConflictError reports an operation attempted against an event in the wrong state.
type ConflictError struct {
	EventID string
	Status  EventStatus
	Op      string
	Msg     string
}

func (e *ConflictError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.EventID, e.Msg)
	}
	return fmt.Sprintf("%s %s: event is %s", e.Op, e.EventID, e.Status)
}

func (e *ConflictError) Unwrap() error { return ErrStateConflict }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

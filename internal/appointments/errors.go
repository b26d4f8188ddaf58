package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the referenced appointment does not exist for the org.
	ErrNotFound = errors.New("appointment not found")

	// ErrAlreadyCancelled is returned when a mutation targets a cancelled appointment.
	ErrAlreadyCancelled = errors.New("appointment already cancelled")

	// ErrSchedulingConflict is returned when the destination slot is occupied.
	ErrSchedulingConflict = errors.New("scheduling conflict")

	// ErrInvalidRecurrenceRule is returned for malformed cadences or occurrence counts.
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

	// ErrInvalidTimeRange is returned when start/end do not form a same-day interval.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrStorage marks retryable infrastructure faults.
	ErrStorage = errors.New("storage error")
)

// ConflictError names the booking that occupies a requested slot.
type ConflictError struct {
	With Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: slot overlaps %s", ErrSchedulingConflict, e.With.Summary())
}

// Is lets errors.Is(err, ErrSchedulingConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}

// NewConflictError builds a ConflictError for the colliding appointment.
func NewConflictError(with Appointment) error {
	return &ConflictError{With: with}
}

// WrapStorage tags an infrastructure error as retryable.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

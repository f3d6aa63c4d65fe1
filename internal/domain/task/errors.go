package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidTask     = errors.New("invalid task")
	ErrTaskNotFound    = errors.New("task not found")
	ErrAdmissionFailed = errors.New("task admission failed")
	ErrInternal        = errors.New("internal error")
)

// AdmissionError is returned when a task could not be persisted. Compensated
// tells whether the charge was returned to the user.
type AdmissionError struct {
	TaskUUID        uuid.UUID
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *AdmissionError) Error() string {
	msg := fmt.Sprintf("task admission failed for %s: %v", e.TaskUUID, e.Cause)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf(" (compensation failed: %v)", e.CompensationErr)
	}
	return msg
}

func (e *AdmissionError) Unwrap() []error {
	return []error{ErrAdmissionFailed, e.Cause}
}

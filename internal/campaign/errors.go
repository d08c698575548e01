package campaign

import (
	"errors"
	"fmt"
)

// ErrAlreadySent is returned when a change targets a campaign that has been
// sent or is being sent.
var ErrAlreadySent = errors.New("campaign already sent")

type ErrNotFound struct {
	Entity string
	ID     int64
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found with ID: %d", e.Entity, e.ID)
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

func NewValidationError(message string) error {
	return ValidationError{Message: message}
}

func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ad/go-telegram-screening/internal/fsm"
)

var (
	ErrValidation    = errors.New("required fields are missing")
	ErrUpload        = errors.New("image upload failed")
	ErrSubmission    = errors.New("assessment submission failed")
	ErrCoercion      = errors.New("field value is not valid")
	ErrBusy          = errors.New("another request is in progress")
	ErrNotReady      = errors.New("assessment is not on its last step")
	ErrWrongStep     = errors.New("photo capture is only available on the photo step")
	ErrAlreadyImaged = errors.New("a photo is already attached, clear it first")
	ErrCompleted     = errors.New("assessment already submitted")
	ErrAbandoned     = errors.New("assessment was abandoned")
)

// ValidationError lists the unset required fields of a step.
type ValidationError struct {
	Step    fsm.Step
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Step, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CoercionError reports a draft value that cannot be converted to its wire
// type. It matches both ErrCoercion and ErrSubmission.
type CoercionError struct {
	Field string
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("%s: %s=%q: %v", ErrCoercion, e.Field, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() []error {
	return []error{ErrCoercion, ErrSubmission, e.Err}
}

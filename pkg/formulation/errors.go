package formulation

import (
	"errors"
	"fmt"
)

var (
	// ErrCompositionExceeded is returned when a draft update would push the
	// aggregate composition above 100%.
	ErrCompositionExceeded = errors.New("the sum of raw materials cannot exceed 100%")
	// ErrNegativeShare is returned for negative draft percentages.
	ErrNegativeShare = errors.New("a raw material share cannot be negative")
	// ErrInvalidShare is returned for NaN or infinite draft percentages.
	ErrInvalidShare = errors.New("a raw material share must be a finite number")
	// ErrServiceFailure marks a response body in which the service reported an error.
	ErrServiceFailure = errors.New("optimization service reported an error")
)

// ValidationError describes a rejected constraint edit. The entry it
// targets is left untouched.
type ValidationError struct {
	ID    EntryID
	Field Field
	Input string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entry %d: invalid %s %q: %v", e.ID, e.Field, e.Input, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GuardError carries the total a rejected draft update would have produced.
type GuardError struct {
	Material string
	Total    float64
	Err      error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%v (%s would bring the total to %.2f%%)", e.Err, e.Material, e.Total)
}

func (e *GuardError) Unwrap() error { return e.Err }

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these kinds.
var (
	ErrDataLoad   = errors.New("catalog load failed")
	ErrIndex      = errors.New("index population failed")
	ErrIndexFatal = errors.New("index unavailable")
	ErrQuery      = errors.New("query failed")
	ErrGeneration = errors.New("generation failed")

	ErrEmptyQuery      = errors.New("query is empty")
	ErrInvalidCuisine  = errors.New("invalid cuisine selection")
	ErrInvalidCalories = errors.New("invalid calorie limit")
	ErrInvalidK        = errors.New("invalid result count")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// DataLoadError reports an unreadable or unparsable catalog.
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("catalog: load %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() []error { return []error{ErrDataLoad, e.Err} }

// IndexError reports a collection failure. Fatal errors mean no index exists
// and the caller must not serve queries.
type IndexError struct {
	Collection string
	Op         string
	Fatal      bool
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() []error {
	if e.Fatal {
		return []error{ErrIndexFatal, e.Err}
	}
	return []error{ErrIndex, e.Err}
}

// QueryError reports a failed embedding or search for a query.
type QueryError struct {
	Collection string
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query: search %s: %v", e.Collection, e.Err)
}

func (e *QueryError) Unwrap() []error { return []error{ErrQuery, e.Err} }

// GenerationError describes why generated text was rejected. It never reaches
// end users; the synthesizer recovers with a fallback response.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation: " + e.Reason
	}
	return fmt.Sprintf("generation: %s: %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGeneration}
	}
	return []error{ErrGeneration, e.Err}
}

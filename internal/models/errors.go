package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals invalid configuration or input.
	ErrValidation = errors.New("validation failed")
	// ErrMissingEmbedding signals a record without an embedding where one is required.
	ErrMissingEmbedding = errors.New("missing embedding")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrIndexCorrupt signals malformed or version-mismatched snapshot data.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrProvider signals an external provider failure.
	ErrProvider = errors.New("provider error")
	// ErrIndexIO signals a filesystem failure during persist or restore.
	ErrIndexIO = errors.New("index io error")
	// ErrNotFound signals an unknown record id.
	ErrNotFound = errors.New("not found")
)

// DimensionError wraps ErrDimensionMismatch with the offending sizes.
type DimensionError struct {
	ID       string
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: record %q has %d, expected %d", ErrDimensionMismatch, e.ID, e.Got, e.Expected)
	}
	return fmt.Sprintf("%s: got %d, expected %d", ErrDimensionMismatch, e.Got, e.Expected)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// OpError attaches the failing operation to an underlying error.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with op. A nil err yields nil.
func NewOpError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// ProviderError records which provider and stage failed.
type ProviderError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrProvider, e.Provider, e.Stage, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }
